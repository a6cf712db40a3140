package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/ledger"
	"github.com/betbot/paperex/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type depositRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type watchlistRequest struct {
	Pair string `json:"pair"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "invalid json body")
		return
	}
	id, err := s.cfg.Ledger.Login(c.Request.Context(), session.Credential{Email: req.Email, Password: req.Password})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"accountId": id})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.cfg.Ledger.Logout(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"ok": true})
}

func (s *Server) handleAccount(c *gin.Context) {
	acc, err := s.cfg.Ledger.Account(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	// 密码哈希不出接口
	acc.PasswordHash = ""
	c.JSON(200, acc)
}

func (s *Server) handlePortfolio(c *gin.Context) {
	p, err := s.cfg.Ledger.Portfolio(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, p)
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.cfg.Ledger.ResetAccount(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"ok": true})
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "invalid json body")
		return
	}
	bal, err := s.cfg.Ledger.Deposit(c.Request.Context(), req.Asset, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"asset": strings.ToUpper(strings.TrimSpace(req.Asset)), "balance": bal})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req ledger.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "invalid json body")
		return
	}
	id, err := s.cfg.Ledger.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(201, gin.H{"orderId": id})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("orderID"))
	if id == "" {
		writeError(c, 400, "orderID is required")
		return
	}
	ok, err := s.cfg.Ledger.CancelOrder(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		writeError(c, 404, "order not found or no longer open")
		return
	}
	c.JSON(200, gin.H{"orderId": id, "cancelled": true})
}

func (s *Server) handleOpenOrders(c *gin.Context) {
	orders, err := s.cfg.Ledger.OpenOrders(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"orders": orders})
}

func (s *Server) handleOrderHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	orders, err := s.cfg.Ledger.OrderHistory(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"orders": orders})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	trades, err := s.cfg.Ledger.TradeHistory(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"trades": trades})
}

func (s *Server) handleWatchlist(c *gin.Context) {
	ctx := c.Request.Context()
	acc, err := s.cfg.Ledger.Account(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	tickers, err := s.cfg.Prices.Tickers(ctx, acc.Watchlist)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"watchlist": acc.Watchlist, "tickers": tickers})
}

func (s *Server) handleWatchlistAdd(c *gin.Context) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "invalid json body")
		return
	}
	added, err := s.cfg.Ledger.AddToWatchlist(c.Request.Context(), req.Pair)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"pair": domain.NormalizePair(req.Pair), "added": added})
}

func (s *Server) handleWatchlistRemove(c *gin.Context) {
	pair := c.Param("pair")
	removed, err := s.cfg.Ledger.RemoveFromWatchlist(c.Request.Context(), pair)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"pair": domain.NormalizePair(pair), "removed": removed})
}

func (s *Server) handlePrice(c *gin.Context) {
	q, err := s.cfg.Prices.GetPrice(c.Request.Context(), c.Param("pair"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, q)
}

// handleTickers ?pairs=BTCEUR,ETHEUR
func (s *Server) handleTickers(c *gin.Context) {
	var pairs []string
	for _, p := range strings.Split(c.Query("pairs"), ",") {
		if p = domain.NormalizePair(p); p != "" {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		writeError(c, 400, "pairs is required")
		return
	}
	tickers, err := s.cfg.Prices.Tickers(c.Request.Context(), pairs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"tickers": tickers})
}

func (s *Server) handleSettingsGet(c *gin.Context) {
	st, err := s.cfg.Settings.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, st)
}

func (s *Server) handleSettingsPut(c *gin.Context) {
	var st domain.Settings
	if err := c.ShouldBindJSON(&st); err != nil {
		writeError(c, 400, "invalid json body")
		return
	}
	saved, err := s.cfg.Settings.Put(c.Request.Context(), st)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// parseLimit 读取 ?limit=，缺省为 0（账本取默认条数）
func parseLimit(c *gin.Context) (int, bool) {
	v := strings.TrimSpace(c.Query("limit"))
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 5000 {
		writeError(c, 400, "limit must be an integer in [0, 5000]")
		return 0, false
	}
	return n, true
}
