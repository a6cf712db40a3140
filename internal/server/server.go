package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/ledger"
	"github.com/betbot/paperex/internal/priceoracle"
	"github.com/betbot/paperex/internal/session"
)

var log = logrus.WithField("component", "http")

// Ledger 账本能力（由 ledger.Ledger 实现）
type Ledger interface {
	Login(ctx context.Context, cred session.Credential) (string, error)
	Logout(ctx context.Context) error
	Account(ctx context.Context) (*domain.Account, error)
	Portfolio(ctx context.Context) (*ledger.Portfolio, error)
	ResetAccount(ctx context.Context) error
	Deposit(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req ledger.PlaceOrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	OpenOrders(ctx context.Context) ([]domain.Order, error)
	OrderHistory(ctx context.Context, limit int) ([]domain.Order, error)
	TradeHistory(ctx context.Context, limit int) ([]domain.Trade, error)
	AddToWatchlist(ctx context.Context, pair string) (bool, error)
	RemoveFromWatchlist(ctx context.Context, pair string) (bool, error)
	Subscribe() *ledger.Subscription
}

// Prices 行情能力（由 priceoracle.Oracle 实现）
type Prices interface {
	GetPrice(ctx context.Context, pair string) (priceoracle.Quote, error)
	Tickers(ctx context.Context, pairs []string) ([]priceoracle.Ticker, error)
}

// Settings 界面设置读写（由 settings.Service 实现）
type Settings interface {
	Get(ctx context.Context) (domain.Settings, error)
	Put(ctx context.Context, st domain.Settings) (domain.Settings, error)
}

// Fees 对外展示的费率
type Fees struct {
	TakerFeeRate decimal.Decimal `json:"takerFeeRate"`
	MakerFeeRate decimal.Decimal `json:"makerFeeRate"` // 仅展示，撮合只收 taker 费
}

type Config struct {
	Ledger   Ledger
	Prices   Prices
	Settings Settings
	Fees     Fees

	// RequestTimeout 单个请求的处理上限（不含 /ws）
	RequestTimeout time.Duration
}

type Server struct {
	cfg Config
}

func New(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", s.handleWS)

	api := r.Group("/api", s.withTimeout())

	sess := api.Group("/session")
	sess.POST("", s.handleLogin)
	sess.DELETE("", s.handleLogout)

	account := api.Group("/account")
	account.GET("", s.handleAccount)
	account.GET("/portfolio", s.handlePortfolio)
	account.POST("/reset", s.handleReset)
	account.POST("/deposit", s.handleDeposit)

	orders := api.Group("/orders")
	orders.POST("", s.handlePlaceOrder)
	orders.GET("/open", s.handleOpenOrders)
	orders.GET("/history", s.handleOrderHistory)
	orders.DELETE("/:orderID", s.handleCancelOrder)

	api.GET("/trades", s.handleTrades)

	watch := api.Group("/watchlist")
	watch.GET("", s.handleWatchlist)
	watch.POST("", s.handleWatchlistAdd)
	watch.DELETE("/:pair", s.handleWatchlistRemove)

	api.GET("/prices/:pair", s.handlePrice)
	api.GET("/tickers", s.handleTickers)

	api.GET("/fees", func(c *gin.Context) { c.JSON(http.StatusOK, s.cfg.Fees) })

	api.GET("/settings", s.handleSettingsGet)
	api.PUT("/settings", s.handleSettingsPut)

	return r
}

// withTimeout 给请求 ctx 加处理上限，账本调用据此放弃等待
func (s *Server) withTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("request")
	}
}
