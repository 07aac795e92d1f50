package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core-go/engine"
	"exchange-core-go/instrument"
	"exchange-core-go/internal/scheduler"
)

func newEngine(t *testing.T, expiration time.Time) *engine.Engine {
	t.Helper()
	reg := instrument.NewRegistry([]*instrument.Instrument{{
		Symbol: "RAIN", QtyMult: 1, PriceMult: 1,
		MinPrice: 0, MaxPrice: 100, PriceIncr: 1, QtyIncr: 1,
		Expiration: expiration, IsValid: true,
	}})
	e, err := engine.New(reg, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	return e
}

// TestSettlementJob_SettlesExpired 过期未结算的合约按市场价自动结算
func TestSettlementJob_SettlesExpired(t *testing.T) {
	expiry := time.Now().UTC().Add(-time.Hour)
	e := newEngine(t, expiry)

	job := &scheduler.SettlementJob{
		Engine: e,
		Spec:   "@every 1h",
		Now:    func() time.Time { return time.Now().UTC() },
	}
	require.NoError(t, job.Run(context.Background()))

	in, err := e.Registry().Get("RAIN")
	require.NoError(t, err)
	assert.True(t, in.IsSettled())
	// 空盘口的市场价是区间中点
	assert.Equal(t, 50.0, in.ClosePrice)

	// 第二轮是空操作
	require.NoError(t, job.Run(context.Background()))
}

// TestSettlementJob_SkipsLive 未到期合约不动
func TestSettlementJob_SkipsLive(t *testing.T) {
	e := newEngine(t, time.Now().UTC().Add(time.Hour))

	job := &scheduler.SettlementJob{
		Engine: e,
		Spec:   "@every 1h",
		Now:    func() time.Time { return time.Now().UTC() },
	}
	require.NoError(t, job.Run(context.Background()))

	in, err := e.Registry().Get("RAIN")
	require.NoError(t, err)
	assert.False(t, in.IsSettled())
}

func TestCompactJob(t *testing.T) {
	e := newEngine(t, time.Now().UTC().Add(time.Hour))
	job := &scheduler.CompactJob{Engine: e, Spec: "@every 5m"}
	assert.NoError(t, job.Run(context.Background()))
}
