package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TradingConfig 模拟交易配置
type TradingConfig struct {
	QuoteAssets      []string           // 支持的计价币种（交易对后缀），例如 ["EUR", "USDT"]
	TakerFeeRate     float64            // 吃单费率（结算时统一使用，默认 0.001）
	MakerFeeRate     float64            // 挂单费率（仅展示，没有真实对手方）
	SettleDelay      time.Duration      // 下单后自动成交的延迟（模拟交易所延迟），默认 1s
	InitialBalances  map[string]float64 // 新账户初始余额
	DefaultWatchlist []string           // 新账户默认自选
	SeedPrices       map[string]float64 // 行情不可用时的参考价（可选）
}

// SessionConfig 会话配置
type SessionConfig struct {
	Timeout time.Duration // 会话有效期（从登录开始计算），默认 30 分钟
}

// StoreConfig 存储配置
type StoreConfig struct {
	Driver        string // memory | json | badger | sqlite | pebble
	Path          string // 目录或文件路径
	EncryptionKey string // badger 加密 key（hex/base64，32 字节，可选）
}

// PriceConfig 行情配置
type PriceConfig struct {
	RESTBaseURL    string        // Binance REST 地址
	StreamURL      string        // Binance WebSocket 地址
	StreamEnabled  bool          // 是否订阅实时 ticker
	StreamPairs    []string      // 订阅的交易对（为空则使用默认自选）
	CacheTTL       time.Duration // 最近成交价缓存时间
	RequestTimeout time.Duration // REST 请求超时
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Listen        string // API 监听地址
	MetricsListen string // expvar/pprof 监听地址（为空则不启动）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	JSON       bool
}

// Config 应用配置
type Config struct {
	Trading TradingConfig
	Session SessionConfig
	Store   StoreConfig
	Price   PriceConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Trading struct {
		QuoteAssets      []string           `yaml:"quote_assets" json:"quote_assets"`
		TakerFeeRate     *float64           `yaml:"taker_fee_rate" json:"taker_fee_rate"`
		MakerFeeRate     *float64           `yaml:"maker_fee_rate" json:"maker_fee_rate"`
		SettleDelay      string             `yaml:"settle_delay" json:"settle_delay"`
		InitialBalances  map[string]float64 `yaml:"initial_balances" json:"initial_balances"`
		DefaultWatchlist []string           `yaml:"default_watchlist" json:"default_watchlist"`
		SeedPrices       map[string]float64 `yaml:"seed_prices" json:"seed_prices"`
	} `yaml:"trading" json:"trading"`
	Session struct {
		Timeout string `yaml:"timeout" json:"timeout"`
	} `yaml:"session" json:"session"`
	Store struct {
		Driver        string `yaml:"driver" json:"driver"`
		Path          string `yaml:"path" json:"path"`
		EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	} `yaml:"store" json:"store"`
	Price struct {
		RESTBaseURL    string   `yaml:"rest_base_url" json:"rest_base_url"`
		StreamURL      string   `yaml:"stream_url" json:"stream_url"`
		StreamEnabled  *bool    `yaml:"stream_enabled" json:"stream_enabled"`
		StreamPairs    []string `yaml:"stream_pairs" json:"stream_pairs"`
		CacheTTL       string   `yaml:"cache_ttl" json:"cache_ttl"`
		RequestTimeout string   `yaml:"request_timeout" json:"request_timeout"`
	} `yaml:"price" json:"price"`
	HTTP struct {
		Listen        string `yaml:"listen" json:"listen"`
		MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
	} `yaml:"http" json:"http"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   *bool  `yaml:"compress" json:"compress"`
		JSON       bool   `yaml:"json" json:"json"`
	} `yaml:"log" json:"log"`
}

// DefaultInitialBalances 新账户初始余额表
func DefaultInitialBalances() map[string]float64 {
	return map[string]float64{
		"EUR":  400.00,
		"USDT": 1000.00,
		"BTC":  0.5,
		"ETH":  5.0,
		"BNB":  10.0,
		"ADA":  1000.0,
		"XRP":  5000.0,
		"SOL":  20.0,
		"DOGE": 10000.0,
	}
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			QuoteAssets:      []string{"EUR", "USDT"},
			TakerFeeRate:     0.001, // 0.1%
			MakerFeeRate:     0.001, // 0.1%
			SettleDelay:      time.Second,
			InitialBalances:  DefaultInitialBalances(),
			DefaultWatchlist: []string{"BTCEUR", "ETHEUR", "BNBEUR"},
			SeedPrices:       map[string]float64{},
		},
		Session: SessionConfig{
			Timeout: 30 * time.Minute,
		},
		Store: StoreConfig{
			Driver: "badger",
			Path:   "data/paperex",
		},
		Price: PriceConfig{
			RESTBaseURL:    "https://api.binance.com",
			StreamURL:      "wss://stream.binance.com:9443",
			StreamEnabled:  true,
			CacheTTL:       5 * time.Minute,
			RequestTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/paperex.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
func Load(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		if err := cfg.applyFile(cf); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", filePath, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cf ConfigFile
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", filepath.Ext(filePath))
	}
	return &cf, nil
}

func (c *Config) applyFile(cf *ConfigFile) error {
	t := &c.Trading
	if len(cf.Trading.QuoteAssets) > 0 {
		t.QuoteAssets = normalizeSymbols(cf.Trading.QuoteAssets)
	}
	if cf.Trading.TakerFeeRate != nil {
		t.TakerFeeRate = *cf.Trading.TakerFeeRate
	}
	if cf.Trading.MakerFeeRate != nil {
		t.MakerFeeRate = *cf.Trading.MakerFeeRate
	}
	if err := setDuration(&t.SettleDelay, cf.Trading.SettleDelay); err != nil {
		return fmt.Errorf("trading.settle_delay: %w", err)
	}
	if len(cf.Trading.InitialBalances) > 0 {
		t.InitialBalances = make(map[string]float64, len(cf.Trading.InitialBalances))
		for asset, v := range cf.Trading.InitialBalances {
			t.InitialBalances[strings.ToUpper(strings.TrimSpace(asset))] = v
		}
	}
	if len(cf.Trading.DefaultWatchlist) > 0 {
		t.DefaultWatchlist = normalizeSymbols(cf.Trading.DefaultWatchlist)
	}
	for pair, v := range cf.Trading.SeedPrices {
		t.SeedPrices[strings.ToUpper(strings.TrimSpace(pair))] = v
	}

	if err := setDuration(&c.Session.Timeout, cf.Session.Timeout); err != nil {
		return fmt.Errorf("session.timeout: %w", err)
	}

	if cf.Store.Driver != "" {
		c.Store.Driver = strings.ToLower(cf.Store.Driver)
	}
	if cf.Store.Path != "" {
		c.Store.Path = cf.Store.Path
	}
	if cf.Store.EncryptionKey != "" {
		c.Store.EncryptionKey = cf.Store.EncryptionKey
	}

	p := &c.Price
	if cf.Price.RESTBaseURL != "" {
		p.RESTBaseURL = cf.Price.RESTBaseURL
	}
	if cf.Price.StreamURL != "" {
		p.StreamURL = cf.Price.StreamURL
	}
	if cf.Price.StreamEnabled != nil {
		p.StreamEnabled = *cf.Price.StreamEnabled
	}
	if len(cf.Price.StreamPairs) > 0 {
		p.StreamPairs = normalizeSymbols(cf.Price.StreamPairs)
	}
	if err := setDuration(&p.CacheTTL, cf.Price.CacheTTL); err != nil {
		return fmt.Errorf("price.cache_ttl: %w", err)
	}
	if err := setDuration(&p.RequestTimeout, cf.Price.RequestTimeout); err != nil {
		return fmt.Errorf("price.request_timeout: %w", err)
	}

	if cf.HTTP.Listen != "" {
		c.HTTP.Listen = cf.HTTP.Listen
	}
	if cf.HTTP.MetricsListen != "" {
		c.HTTP.MetricsListen = cf.HTTP.MetricsListen
	}

	l := &c.Log
	if cf.Log.Level != "" {
		l.Level = cf.Log.Level
	}
	if cf.Log.File != "" {
		l.File = cf.Log.File
	}
	if cf.Log.MaxSize > 0 {
		l.MaxSize = cf.Log.MaxSize
	}
	if cf.Log.MaxBackups > 0 {
		l.MaxBackups = cf.Log.MaxBackups
	}
	if cf.Log.MaxAge > 0 {
		l.MaxAge = cf.Log.MaxAge
	}
	if cf.Log.Compress != nil {
		l.Compress = *cf.Log.Compress
	}
	if cf.Log.JSON {
		l.JSON = true
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Trading.TakerFeeRate = parseFloatEnv("PAPEREX_TAKER_FEE_RATE", c.Trading.TakerFeeRate)
	c.Trading.SettleDelay = parseDurationEnv("PAPEREX_SETTLE_DELAY", c.Trading.SettleDelay)
	if v := getEnv("PAPEREX_QUOTE_ASSETS", ""); v != "" {
		c.Trading.QuoteAssets = parseSymbolList(v)
	}
	c.Session.Timeout = parseDurationEnv("PAPEREX_SESSION_TIMEOUT", c.Session.Timeout)

	c.Store.Driver = strings.ToLower(getEnv("PAPEREX_STORE_DRIVER", c.Store.Driver))
	c.Store.Path = getEnv("PAPEREX_STORE_PATH", c.Store.Path)
	c.Store.EncryptionKey = getEnv("PAPEREX_STORE_ENCRYPTION_KEY", c.Store.EncryptionKey)

	c.Price.RESTBaseURL = getEnv("PAPEREX_BINANCE_REST_URL", c.Price.RESTBaseURL)
	c.Price.StreamURL = getEnv("PAPEREX_BINANCE_STREAM_URL", c.Price.StreamURL)
	c.Price.StreamEnabled = parseBoolEnv("PAPEREX_STREAM_ENABLED", c.Price.StreamEnabled)
	if v := getEnv("PAPEREX_STREAM_PAIRS", ""); v != "" {
		c.Price.StreamPairs = parseSymbolList(v)
	}

	c.HTTP.Listen = getEnv("PAPEREX_LISTEN", c.HTTP.Listen)
	c.HTTP.MetricsListen = getEnv("PAPEREX_METRICS_LISTEN", c.HTTP.MetricsListen)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Log.JSON = parseBoolEnv("LOG_JSON", c.Log.JSON)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Trading.QuoteAssets) == 0 {
		return fmt.Errorf("quote_assets 不能为空")
	}
	if c.Trading.TakerFeeRate < 0 || c.Trading.TakerFeeRate >= 1 {
		return fmt.Errorf("taker_fee_rate 必须在 [0, 1) 之间，当前 %v", c.Trading.TakerFeeRate)
	}
	if c.Trading.MakerFeeRate < 0 || c.Trading.MakerFeeRate >= 1 {
		return fmt.Errorf("maker_fee_rate 必须在 [0, 1) 之间，当前 %v", c.Trading.MakerFeeRate)
	}
	if c.Trading.SettleDelay <= 0 {
		return fmt.Errorf("settle_delay 必须大于 0")
	}
	for asset, v := range c.Trading.InitialBalances {
		if v < 0 {
			return fmt.Errorf("initial_balances.%s 不能为负数", asset)
		}
	}
	for pair, v := range c.Trading.SeedPrices {
		if v <= 0 {
			return fmt.Errorf("seed_prices.%s 必须大于 0", pair)
		}
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout 必须大于 0")
	}
	switch c.Store.Driver {
	case "memory":
	case "json", "badger", "sqlite", "pebble":
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path 不能为空（driver=%s）", c.Store.Driver)
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Store.Driver)
	}
	if c.Price.CacheTTL <= 0 {
		return fmt.Errorf("price.cache_ttl 必须大于 0")
	}
	return nil
}

// StreamPairsOrDefault 返回需要订阅的交易对
func (c *Config) StreamPairsOrDefault() []string {
	if len(c.Price.StreamPairs) > 0 {
		return c.Price.StreamPairs
	}
	return c.Trading.DefaultWatchlist
}

// SortedAssets 返回初始余额中的币种（排序后，便于日志输出）
func (t TradingConfig) SortedAssets() []string {
	out := make([]string, 0, len(t.InitialBalances))
	for asset := range t.InitialBalances {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

func setDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// parseDuration 支持 Go duration 格式，兼容纯数字秒
func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	if n, err2 := strconv.Atoi(raw); err2 == nil {
		return time.Duration(n) * time.Second, nil
	}
	return 0, err
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseSymbolList 解析逗号分隔的列表
func parseSymbolList(str string) []string {
	return normalizeSymbols(strings.Split(str, ","))
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	if v := getEnv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	if v := getEnv(key, ""); v != "" {
		return v == "true" || v == "1"
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := getEnv(key, ""); v != "" {
		if d, err := parseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
