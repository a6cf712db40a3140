package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paperex/internal/ledger"
	"github.com/betbot/paperex/internal/metrics"
	"github.com/betbot/paperex/internal/priceoracle"
	"github.com/betbot/paperex/internal/server"
	"github.com/betbot/paperex/internal/session"
	"github.com/betbot/paperex/internal/settings"
	"github.com/betbot/paperex/pkg/config"
	"github.com/betbot/paperex/pkg/logger"
	"github.com/betbot/paperex/pkg/persistence"
	"github.com/betbot/paperex/pkg/shutdown"
	"github.com/betbot/paperex/pkg/syncgroup"
)

func firstExistingFile(paths ...string) (string, bool) {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func toDecimals(in map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = decimal.NewFromFloat(v)
	}
	return out
}

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	listen := flag.String("listen", "", "HTTP 监听地址（覆盖配置）")
	storeDriver := flag.String("store", "", "存储驱动 memory|json|badger|sqlite|pebble（覆盖配置）")
	noStream := flag.Bool("no-stream", false, "不订阅 Binance 实时行情")
	flag.Parse()

	path := *configPath
	if path == "" {
		if p, ok := firstExistingFile("yml/paperex.yaml", "yml/paperex.yml", "paperex.yaml"); ok {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}
	if *storeDriver != "" {
		cfg.Store.Driver = *storeDriver
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "配置无效: %v\n", err)
			os.Exit(1)
		}
	}
	if *noStream {
		cfg.Price.StreamEnabled = false
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		JSON:       cfg.Log.JSON,
	}); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}
	if path != "" {
		logrus.Infof("使用配置文件: %s", path)
	} else {
		logrus.Warnf("未指定配置文件，将使用环境变量和默认值")
	}

	if err := run(cfg); err != nil {
		logrus.Errorf("paperex 退出: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMgr := shutdown.NewManager()
	loops := syncgroup.NewSyncGroup()

	// 存储
	store, err := persistence.Open(persistence.Config{
		Driver:        cfg.Store.Driver,
		Path:          cfg.Store.Path,
		EncryptionKey: cfg.Store.EncryptionKey,
	})
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	shutdownMgr.OnClose("store", store)
	logrus.Infof("存储已就绪: driver=%s path=%s", cfg.Store.Driver, cfg.Store.Path)

	// 行情
	oracle := priceoracle.New(priceoracle.Options{
		Fetcher:    priceoracle.NewBinanceClient(cfg.Price.RESTBaseURL, cfg.Price.RequestTimeout),
		CacheTTL:   cfg.Price.CacheTTL,
		SeedPrices: toDecimals(cfg.Trading.SeedPrices),
	})
	defer oracle.Close()
	if cfg.Price.StreamEnabled {
		stream := priceoracle.NewStream(cfg.Price.StreamURL, cfg.StreamPairsOrDefault(), oracle)
		loops.Go(rootCtx, "price_stream", func(ctx context.Context) {
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.Warnf("行情流退出: %v", err)
			}
		})
	}

	// 会话 + 账本
	balances := toDecimals(cfg.Trading.InitialBalances)
	sessions := session.NewManager(store, session.Options{
		Timeout:          cfg.Session.Timeout,
		InitialBalances:  balances,
		DefaultWatchlist: cfg.Trading.DefaultWatchlist,
	})
	led := ledger.New(store, sessions, oracle, ledger.Config{
		QuoteAssets:     cfg.Trading.QuoteAssets,
		TakerFeeRate:    decimal.NewFromFloat(cfg.Trading.TakerFeeRate),
		SettleDelay:     cfg.Trading.SettleDelay,
		InitialBalances: balances,
	})
	ledgerCtx, stopLedger := context.WithCancel(rootCtx)
	defer stopLedger()
	loops.Go(ledgerCtx, "ledger", led.Run)
	logrus.Infof("账本已启动: quotes=%v fee=%.4f settle_delay=%s assets=%v",
		cfg.Trading.QuoteAssets, cfg.Trading.TakerFeeRate, cfg.Trading.SettleDelay, cfg.Trading.SortedAssets())

	// HTTP
	srv := server.New(server.Config{
		Ledger:   led,
		Prices:   oracle,
		Settings: settings.New(store),
		Fees: server.Fees{
			TakerFeeRate: decimal.NewFromFloat(cfg.Trading.TakerFeeRate),
			MakerFeeRate: decimal.NewFromFloat(cfg.Trading.MakerFeeRate),
		},
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("paperex listening on %s", cfg.HTTP.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cfg.HTTP.MetricsListen != "" {
		if _, err := metrics.StartAsync(rootCtx, cfg.HTTP.MetricsListen); err != nil {
			logrus.Warnf("调试服务启动失败: %v", err)
		} else {
			logrus.Infof("调试服务: http://%s/debug/vars", cfg.HTTP.MetricsListen)
		}
	}

	// 先停 HTTP，再停后台循环；存储在最后关闭
	shutdownMgr.OnShutdown("http", func(ctx context.Context) {
		_ = httpSrv.Shutdown(ctx)
	})
	shutdownMgr.OnShutdown("loops", func(ctx context.Context) {
		stopLedger()
		cancel()
		if !loops.WaitContext(ctx) {
			logrus.Warnf("后台循环未按时退出: %v", loops.Running())
		}
	})

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	var runErr error
	select {
	case sig := <-stopCh:
		logrus.Infof("收到信号 %s，准备退出", sig)
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	shutdownMgr.Shutdown(ctx)
	logrus.Info("paperex stopped")
	return runErr
}
