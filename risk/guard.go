package risk

import (
	"time"

	"exchange-core-go/instrument"
)

// Guard 是事前风控的通用接口，信用闸门等都可实现。
type Guard interface {
	PreOrder(trader string, in instrument.Instrument, isBuy bool, quantity, limitPrice float64) error
}

// MultiGuard 顺序执行多个 Guard，只要有一个返回错误则中止。
type MultiGuard struct {
	Guards []Guard
}

func (m MultiGuard) PreOrder(trader string, in instrument.Instrument, isBuy bool, quantity, limitPrice float64) error {
	for _, g := range m.Guards {
		if g == nil {
			continue
		}
		if err := g.PreOrder(trader, in, isBuy, quantity, limitPrice); err != nil {
			return err
		}
	}
	return nil
}

// CreditSource 提供交易员的信用额度（可热更新）。
type CreditSource interface {
	CreditLimit(trader string) float64
}

// CreditGuard 事前信用闸门。基于稍旧的快照计算是允许的——
// 它是顾问性检查，不参与撮合事务；但快照内无歧义的拒单必须拒。
type CreditGuard struct {
	Credit   CreditSource
	Trades   TradeSource
	Prices   PriceSource
	Registry *instrument.Registry
	Clock    Clock
}

// OrderRisk 假想订单自身的最坏亏损：买单看价格跌到 min_price，
// 卖单看价格涨到 max_price；只计下行（<=0）。
func OrderRisk(in instrument.Instrument, isBuy bool, quantity, limitPrice float64) float64 {
	var r float64
	if isBuy {
		r = quantity * (in.MinPrice - limitPrice) * in.PriceMult * in.QtyMult
	} else {
		r = quantity * (limitPrice - in.MaxPrice) * in.PriceMult * in.QtyMult
	}
	return min(0, r)
}

// PreOrder 接单判据：credit_limit + pnl + crash_risk + order_risk > 0。
// 不满足则拒单，订单不入簿、不产生任何记录。
func (g *CreditGuard) PreOrder(trader string, in instrument.Instrument, isBuy bool, quantity, limitPrice float64) error {
	var now time.Time
	if g.Clock != nil {
		now = g.Clock.Now()
	} else {
		now = NowUTC.Now()
	}
	creditLimit := g.Credit.CreditLimit(trader)
	pnl, risk := PnL(trader, g.Trades.Trades(), g.Registry, g.Prices, now)
	orderRisk := OrderRisk(in, isBuy, quantity, limitPrice)
	if creditLimit+pnl+risk+orderRisk > 0 {
		return nil
	}
	return ErrInsufficientCredit
}
