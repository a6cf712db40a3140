package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// TickerSink 接收推送行情
type TickerSink interface {
	UpdateTicker(t Ticker)
}

// Stream Binance 组合流（<sym>@ticker）客户端，断线后按退避重连直到 ctx 结束
type Stream struct {
	baseURL      string
	pairs        []string
	sink         TickerSink
	dialer       websocket.Dialer
	minDelay     time.Duration
	maxDelay     time.Duration
	readDeadline time.Duration
}

// NewStream 创建推送客户端；baseURL 形如 wss://stream.binance.com:9443
func NewStream(baseURL string, pairs []string, sink TickerSink) *Stream {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	return &Stream{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		pairs:        pairs,
		sink:         sink,
		dialer:       dialer,
		minDelay:     time.Second,
		maxDelay:     30 * time.Second,
		readDeadline: 60 * time.Second,
	}
}

// URL 组合流地址
func (s *Stream) URL() string {
	streams := make([]string, 0, len(s.pairs))
	for _, p := range s.pairs {
		streams = append(streams, strings.ToLower(p)+"@ticker")
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))
}

// Run 阻塞运行，ctx 结束时返回 ctx.Err()
func (s *Stream) Run(ctx context.Context) error {
	if len(s.pairs) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	delay := s.minDelay
	for {
		connected, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			log.Info("行情推送停止")
			return ctx.Err()
		}
		if connected {
			delay = s.minDelay
		}
		log.Warnf("行情推送断开: %v，%v 后重连", err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		// 递增延迟
		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
}

// runOnce 建立一次连接并持续读取，返回是否曾连接成功
func (s *Stream) runOnce(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		return false, fmt.Errorf("连接行情 WebSocket 失败: %w", err)
	}
	log.Infof("行情 WebSocket 已连接: %d 个交易对", len(s.pairs))

	// ctx 结束时关闭连接，中断阻塞的 ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		t, ok := parseTickerMessage(msg)
		if !ok {
			continue
		}
		s.sink.UpdateTicker(t)
	}
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type streamTicker struct {
	Event         string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	ChangePercent string `json:"P"`
	LastPrice     string `json:"c"`
	High          string `json:"h"`
	Low           string `json:"l"`
	Volume        string `json:"v"`
	// encoding/json 大小写不敏感匹配，以下字段必须显式声明以免被 c/l/P 误收
	PriceChange string `json:"p"`
	CloseTime   int64  `json:"C"`
	LastTradeID int64  `json:"L"`
}

// parseTickerMessage 兼容组合流（带 stream/data 外壳）和单流消息
func parseTickerMessage(msg []byte) (Ticker, bool) {
	payload := msg
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}
	var st streamTicker
	if err := json.Unmarshal(payload, &st); err != nil {
		return Ticker{}, false
	}
	if st.Symbol == "" || st.LastPrice == "" {
		return Ticker{}, false
	}
	price, err := decimal.NewFromString(st.LastPrice)
	if err != nil || !price.IsPositive() {
		return Ticker{}, false
	}
	t := Ticker{
		Pair:          strings.ToUpper(st.Symbol),
		LastPrice:     price,
		ChangePercent: parseOrZero(st.ChangePercent),
		High:          parseOrZero(st.High),
		Low:           parseOrZero(st.Low),
		Volume:        parseOrZero(st.Volume),
		At:            time.Now(),
	}
	if st.EventTime > 0 {
		t.At = time.UnixMilli(st.EventTime)
	}
	return t, true
}
