package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/ledger"
)

const recentTrades = 8

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// model 是应用程序的状态
type model struct {
	api    *apiClient
	events chan struct{}

	account   *domain.Account
	portfolio *ledger.Portfolio
	selected  int

	status    string
	err       error
	updatedAt time.Time
}

// tickMsg 定时刷新
type tickMsg time.Time

// balanceUpdatedMsg 服务端推送的变更信号
type balanceUpdatedMsg struct{}

// snapshotMsg 一次完整的账户快照
type snapshotMsg struct {
	account   *domain.Account
	portfolio *ledger.Portfolio
	err       error
}

// cancelledMsg 取消结果
type cancelledMsg struct {
	orderID string
	err     error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.api), waitEventCmd(m.events), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.account != nil && m.selected < len(m.account.OpenOrders)-1 {
				m.selected++
			}
		case "r":
			m.status = "刷新中..."
			return m, fetchCmd(m.api)
		case "c":
			if m.account == nil || len(m.account.OpenOrders) == 0 {
				return m, nil
			}
			id := m.account.OpenOrders[m.selected].ID
			m.status = "取消 " + id + "..."
			return m, cancelCmd(m.api, id)
		}

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.api), tickCmd())

	case balanceUpdatedMsg:
		return m, tea.Batch(fetchCmd(m.api), waitEventCmd(m.events))

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.account = msg.account
			m.portfolio = msg.portfolio
			m.updatedAt = time.Now()
			if m.selected >= len(m.account.OpenOrders) {
				m.selected = max(0, len(m.account.OpenOrders)-1)
			}
			m.status = ""
		}

	case cancelledMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "已取消 " + msg.orderID
		}
		return m, fetchCmd(m.api)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("paperex 模拟交易"))
	if m.account != nil {
		b.WriteString("  " + dimStyle.Render(m.account.Email))
	}
	b.WriteString("\n\n")

	if m.account == nil {
		if m.err != nil {
			b.WriteString(errStyle.Render("错误: "+m.err.Error()) + "\n")
		} else {
			b.WriteString("加载中...\n")
		}
		b.WriteString(dimStyle.Render("\nq 退出  r 刷新"))
		return b.String()
	}

	balances := m.renderBalances()
	orders := m.renderOpenOrders()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, balances, " ", orders))
	b.WriteString("\n")
	b.WriteString(m.renderTrades())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("错误: "+m.err.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("更新于 %s   ↑/↓ 选择  c 取消订单  r 刷新  q 退出",
		m.updatedAt.Format("15:04:05"))))
	return b.String()
}

func (m model) renderBalances() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("余额") + "\n")
	assets := make([]string, 0, len(m.account.Balances))
	for asset, v := range m.account.Balances {
		if v.IsPositive() {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	for _, asset := range assets {
		b.WriteString(fmt.Sprintf("%-6s %18s\n", asset, m.account.Balances[asset].StringFixed(8)))
	}
	if p := m.portfolio; p != nil {
		b.WriteString(fmt.Sprintf("\n估值 %s %s", p.TotalValue.StringFixed(2), p.ValuationAsset))
	}
	return borderStyle.Render(b.String())
}

func (m model) renderOpenOrders() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("开放订单 (%d)", len(m.account.OpenOrders))) + "\n")
	if len(m.account.OpenOrders) == 0 {
		b.WriteString(dimStyle.Render("无"))
	}
	for i, o := range m.account.OpenOrders {
		line := fmt.Sprintf("%-8s %-4s %s @ %s", o.Pair, o.Side, o.Amount.String(), o.Price.String())
		switch {
		case i == m.selected:
			line = selectedStyle.Render(line)
		case o.Side == domain.SideBuy:
			line = buyStyle.Render(line)
		default:
			line = sellStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return borderStyle.Render(b.String())
}

func (m model) renderTrades() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("最近成交") + "\n")
	trades := m.account.TradeHistory
	if len(trades) > recentTrades {
		trades = trades[:recentTrades]
	}
	if len(trades) == 0 {
		b.WriteString(dimStyle.Render("无"))
	}
	for _, t := range trades {
		style := sellStyle
		if t.Side == domain.SideBuy {
			style = buyStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("%s %-8s %-4s %s @ %s fee %s %s",
			t.Timestamp.Local().Format("01-02 15:04:05"), t.Pair, t.Side,
			t.Amount.String(), t.Price.String(), t.Fee.String(), t.FeeAsset)) + "\n")
	}
	return borderStyle.Render(b.String())
}

func tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitEventCmd(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return balanceUpdatedMsg{}
	}
}

func fetchCmd(api *apiClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		acc, err := api.Account(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		p, err := api.Portfolio(ctx)
		if err != nil {
			// 估值失败不影响余额展示
			logrus.Warnf("获取估值失败: %v", err)
		}
		return snapshotMsg{account: acc, portfolio: p}
	}
}

func cancelCmd(api *apiClient, orderID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return cancelledMsg{orderID: orderID, err: api.CancelOrder(ctx, orderID)}
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	var (
		addr     = flag.String("addr", getenv("PAPEREX_ADDR", "http://127.0.0.1:8080"), "paperex 服务地址")
		email    = flag.String("email", getenv("PAPEREX_EMAIL", ""), "登录邮箱（为空则沿用服务端当前会话）")
		password = flag.String("password", getenv("PAPEREX_PASSWORD", ""), "登录密码（可选）")
	)
	flag.Parse()

	// 日志只写文件，避免破坏终端界面
	logrus.SetOutput(&lumberjack.Logger{Filename: "logs/paperex-tui.log", MaxSize: 10, MaxBackups: 2})

	api := newAPIClient(*addr)
	if *email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := api.Login(ctx, *email, *password)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "登录失败: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan struct{}, 1)
	go api.watchEvents(ctx, events)

	p := tea.NewProgram(model{api: api, events: events}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		os.Exit(1)
	}
}
