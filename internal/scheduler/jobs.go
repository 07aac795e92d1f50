package scheduler

import (
	"context"
	"time"

	"exchange-core-go/engine"
)

// CompactJob 周期性把过期挂单从各订单簿的价位索引里摘除。
// 过期单在读取路径上本来就被跳过，这里只是回收内存。
type CompactJob struct {
	Engine *engine.Engine
	Spec   string
}

func (j *CompactJob) Name() string     { return "book_compact" }
func (j *CompactJob) Schedule() string { return j.Spec }

func (j *CompactJob) Run(ctx context.Context) error {
	j.Engine.CompactBooks()
	return nil
}

// SettlementJob 扫描已过期但还没写入结算价的合约，按当时的市场价
// 自动结算。手工结算过的合约不会被碰，Settle 只允许写一次。
type SettlementJob struct {
	Engine *engine.Engine
	Spec   string
	Now    func() time.Time
}

func (j *SettlementJob) Name() string     { return "auto_settlement" }
func (j *SettlementJob) Schedule() string { return j.Spec }

func (j *SettlementJob) Run(ctx context.Context) error {
	now := j.Now()
	var firstErr error
	for _, in := range j.Engine.Registry().List() {
		if in.IsLive(now) || in.IsSettled() || !in.IsValid {
			continue
		}
		if err := j.Engine.Settle(in.Symbol, j.Engine.MarketPrice(in.Symbol)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
