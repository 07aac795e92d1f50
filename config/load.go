package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"exchange-core-go/infrastructure/logger"
	"exchange-core-go/instrument"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string             `yaml:"env"`
	Log         logger.Config      `yaml:"log"`
	Server      ServerConfig       `yaml:"server"`
	Store       StoreConfig        `yaml:"store"`
	Scheduler   SchedulerConfig    `yaml:"scheduler"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Traders     []TraderConfig     `yaml:"traders"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	MetricsAddr    string   `yaml:"metricsAddr"`
	RateLimit      float64  `yaml:"rateLimit"` // 每秒请求令牌数，0 关闭限流
	RateBurst      int      `yaml:"rateBurst"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"` // 空表示内存库（仅测试/演示）
}

type SchedulerConfig struct {
	CompactSpec    string `yaml:"compactSpec"`    // cron 表达式，空用默认
	SettlementSpec string `yaml:"settlementSpec"` // cron 表达式，空用默认
}

// InstrumentConfig 合约静态参考数据，启动时一次性装入注册表。
type InstrumentConfig struct {
	Symbol     string    `yaml:"symbol"`
	Name       string    `yaml:"name"`
	Currency   string    `yaml:"currency"`
	QtyUnit    string    `yaml:"qtyUnit"`
	PriceUnit  string    `yaml:"priceUnit"`
	QtyMult    float64   `yaml:"qtyMult"`
	PriceMult  float64   `yaml:"priceMult"`
	MinPrice   float64   `yaml:"minPrice"`
	MaxPrice   float64   `yaml:"maxPrice"`
	PriceIncr  float64   `yaml:"priceIncr"`
	QtyIncr    float64   `yaml:"qtyIncr"`
	Expiration time.Time `yaml:"expiration"`
}

// TraderConfig 交易员及其信用额度；额度支持热更新。
type TraderConfig struct {
	Name        string  `yaml:"name"`
	Account     string  `yaml:"account"`
	CreditLimit float64 `yaml:"creditLimit"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides runtime fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("VENUE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("VENUE_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("VENUE_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Scheduler.CompactSpec == "" {
		cfg.Scheduler.CompactSpec = "@every 5m"
	}
	if cfg.Scheduler.SettlementSpec == "" {
		cfg.Scheduler.SettlementSpec = "@every 1h"
	}
}

// BuildInstruments 把配置翻译成注册表装载用的合约列表。
func (c AppConfig) BuildInstruments(now time.Time) []*instrument.Instrument {
	res := make([]*instrument.Instrument, 0, len(c.Instruments))
	for _, ic := range c.Instruments {
		res = append(res, &instrument.Instrument{
			Symbol:     ic.Symbol,
			Name:       ic.Name,
			Currency:   ic.Currency,
			QtyUnit:    ic.QtyUnit,
			PriceUnit:  ic.PriceUnit,
			QtyMult:    ic.QtyMult,
			PriceMult:  ic.PriceMult,
			MinPrice:   ic.MinPrice,
			MaxPrice:   ic.MaxPrice,
			PriceIncr:  ic.PriceIncr,
			QtyIncr:    ic.QtyIncr,
			BeginTime:  now,
			Expiration: ic.Expiration,
			IsValid:    true,
		})
	}
	return res
}
