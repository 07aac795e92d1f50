package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core-go/config"
)

const validYAML = `
env: test
server:
  addr: ":8081"
instruments:
  - symbol: RAIN-SEP
    name: September rainfall
    qtyMult: 1
    priceMult: 10
    minPrice: 0
    maxPrice: 100
    priceIncr: 1
    qtyIncr: 1
    expiration: 2026-10-01T00:00:00Z
traders:
  - name: alice
    creditLimit: 10000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, "RAIN-SEP", cfg.Instruments[0].Symbol)
	assert.Equal(t, 10.0, cfg.Instruments[0].PriceMult)

	// 默认值
	assert.Equal(t, "@every 5m", cfg.Scheduler.CompactSpec)
	assert.NotEmpty(t, cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VENUE_SERVER_ADDR", ":9999")
	t.Setenv("VENUE_STORE_DIR", "/tmp/venue-test")

	cfg, err := config.LoadWithEnvOverrides(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "/tmp/venue-test", cfg.Store.Dir)
}

func TestValidate(t *testing.T) {
	base := func() config.AppConfig {
		cfg, err := config.Load(writeConfig(t, validYAML))
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*config.AppConfig)
		errMsg string
	}{
		{"缺少 env", func(c *config.AppConfig) { c.Env = "" }, "env is required"},
		{"无合约", func(c *config.AppConfig) { c.Instruments = nil }, "instruments config is required"},
		{"价格区间倒挂", func(c *config.AppConfig) { c.Instruments[0].MaxPrice = -1 }, "maxPrice must be > minPrice"},
		{"乘数非正", func(c *config.AppConfig) { c.Instruments[0].QtyMult = 0 }, "multipliers must be > 0"},
		{"缺到期时间", func(c *config.AppConfig) { c.Instruments[0].Expiration = time.Time{} }, "expiration is required"},
		{"合约重复", func(c *config.AppConfig) {
			c.Instruments = append(c.Instruments, c.Instruments[0])
		}, "defined twice"},
		{"负信用额度", func(c *config.AppConfig) { c.Traders[0].CreditLimit = -1 }, "creditLimit must be >= 0"},
		{"交易员重复", func(c *config.AppConfig) {
			c.Traders = append(c.Traders, c.Traders[0])
		}, "defined twice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := config.Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestBuildInstruments(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	ins := cfg.BuildInstruments(now)
	require.Len(t, ins, 1)
	assert.Equal(t, "RAIN-SEP", ins[0].Symbol)
	assert.Equal(t, now, ins[0].BeginTime)
	assert.True(t, ins[0].IsValid)
	assert.True(t, ins[0].IsLive(now))
}

func TestCreditStore(t *testing.T) {
	s := config.NewCreditStore([]config.TraderConfig{
		{Name: "alice", CreditLimit: 10000},
	})

	assert.Equal(t, 10000.0, s.CreditLimit("alice"))
	assert.Equal(t, 0.0, s.CreditLimit("stranger"))
	assert.True(t, s.Known("alice"))
	assert.False(t, s.Known("stranger"))

	// 热更新整体替换
	s.Replace([]config.TraderConfig{{Name: "bob", CreditLimit: 500}})
	assert.Equal(t, 0.0, s.CreditLimit("alice"))
	assert.Equal(t, 500.0, s.CreditLimit("bob"))
}
