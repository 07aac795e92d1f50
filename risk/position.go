package risk

import (
	"sort"
	"time"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
)

// PriceSource 提供合约的即时市场价（由引擎基于订单簿实现）。
type PriceSource interface {
	MarketPrice(symbol string) float64
}

// TradeSource 提供全部历史成交。仓位按需从成交流重算，不落库。
type TradeSource interface {
	Trades() []book.Trade
}

// PositionReport 一个 (交易员, 合约) 对的仓位与盯市结果。
type PositionReport struct {
	Trader    string  `json:"trader"`
	Symbol    string  `json:"symbol"`
	Position  float64 `json:"position"`
	Price     float64 `json:"price"`
	CostBasis float64 `json:"cost_basis"`
	MktVal    float64 `json:"mkt_val"`
	PnL       float64 `json:"pnl"`
	CrashRisk float64 `json:"crash_risk"`
}

// signedFill 买方 +qty，卖方 -qty。
type signedFill struct {
	qty   float64
	price float64
}

// crashRisk 价格瞬间打到区间边界时的最坏盯市亏损。多头看跌到
// min_price，空头（含平仓）看涨到 max_price；只计下行（<=0）。
func crashRisk(curr, minPrice, maxPrice, priceMult, pos, qtyMult float64) float64 {
	var r float64
	if pos > 0 {
		r = (minPrice - curr) * priceMult * pos * qtyMult
	} else {
		r = (maxPrice - curr) * priceMult * pos * qtyMult
	}
	return min(0, r)
}

func reportFor(trader, symbol string, fills []signedFill, reg *instrument.Registry, prices PriceSource, now time.Time) (PositionReport, bool) {
	in, err := reg.Get(symbol)
	if err != nil {
		return PositionReport{}, false
	}
	curr := prices.MarketPrice(symbol)
	qx, px := in.QtyMult, in.PriceMult

	var pos, costBasis float64
	for _, f := range fills {
		pos += f.qty
		costBasis += f.qty * qx * f.price * px
	}
	mktVal := pos * qx * curr * px
	pnl := mktVal - costBasis

	var risk float64
	if in.IsLive(now) {
		risk = crashRisk(curr, in.MinPrice, in.MaxPrice, px, pos, qx)
	}
	return PositionReport{
		Trader:    trader,
		Symbol:    symbol,
		Position:  pos,
		Price:     curr,
		CostBasis: costBasis,
		MktVal:    mktVal,
		PnL:       pnl,
		CrashRisk: risk,
	}, true
}

type traderSymbol struct {
	trader string
	symbol string
}

func groupFills(trades []book.Trade, trader string) map[traderSymbol][]signedFill {
	groups := make(map[traderSymbol][]signedFill)
	add := func(who, symbol string, qty, price float64) {
		if trader != "" && who != trader {
			return
		}
		k := traderSymbol{who, symbol}
		groups[k] = append(groups[k], signedFill{qty: qty, price: price})
	}
	for _, t := range trades {
		if !t.IsValid {
			continue
		}
		add(t.BuyTrader, t.Symbol, t.Quantity, t.Price)
		add(t.SellTrader, t.Symbol, -t.Quantity, t.Price)
	}
	return groups
}

func reports(groups map[traderSymbol][]signedFill, reg *instrument.Registry, prices PriceSource, now time.Time) []PositionReport {
	keys := make([]traderSymbol, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].trader != keys[j].trader {
			return keys[i].trader < keys[j].trader
		}
		return keys[i].symbol < keys[j].symbol
	})
	res := make([]PositionReport, 0, len(keys))
	for _, k := range keys {
		if rep, ok := reportFor(k.trader, k.symbol, groups[k], reg, prices, now); ok {
			res = append(res, rep)
		}
	}
	return res
}

// Positions 某个交易员在其交易过的全部合约上的仓位报告。
func Positions(trader string, trades []book.Trade, reg *instrument.Registry, prices PriceSource, now time.Time) []PositionReport {
	return reports(groupFills(trades, trader), reg, prices, now)
}

// AllPositions 全体交易员的仓位报告，先按交易员再按合约排序。
func AllPositions(trades []book.Trade, reg *instrument.Registry, prices PriceSource, now time.Time) []PositionReport {
	return reports(groupFills(trades, ""), reg, prices, now)
}

// PnL 交易员跨全部合约的盈亏与崩盘风险合计，信用闸门的输入。
func PnL(trader string, trades []book.Trade, reg *instrument.Registry, prices PriceSource, now time.Time) (pnl, risk float64) {
	for _, p := range Positions(trader, trades, reg, prices, now) {
		pnl += p.PnL
		risk += p.CrashRisk
	}
	return pnl, risk
}
