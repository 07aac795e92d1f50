package risk

import (
	"sort"
	"time"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
)

// LeaderboardEntry 排行榜一行：交易员跨全部合约的盈亏合计。
type LeaderboardEntry struct {
	Trader    string  `json:"trader"`
	PnL       float64 `json:"pnl"`
	CrashRisk float64 `json:"crash_pnl"`
	Rank      int     `json:"rank"`
}

// Leaderboard 按 PnL 降序排名，第 1 名为最高；同分按交易员名
// 升序保证输出稳定。
func Leaderboard(trades []book.Trade, reg *instrument.Registry, prices PriceSource, now time.Time) []LeaderboardEntry {
	totals := make(map[string]*LeaderboardEntry)
	for _, p := range AllPositions(trades, reg, prices, now) {
		e, ok := totals[p.Trader]
		if !ok {
			e = &LeaderboardEntry{Trader: p.Trader}
			totals[p.Trader] = e
		}
		e.PnL += p.PnL
		e.CrashRisk += p.CrashRisk
	}
	res := make([]LeaderboardEntry, 0, len(totals))
	for _, e := range totals {
		res = append(res, *e)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].PnL != res[j].PnL {
			return res[i].PnL > res[j].PnL
		}
		return res[i].Trader < res[j].Trader
	})
	for i := range res {
		res[i].Rank = i + 1
	}
	return res
}
