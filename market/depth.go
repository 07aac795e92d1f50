package market

import (
	"sort"
	"time"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
)

// DepthRow 深度梯子的一行：一个整数价位上双边的可见量。
type DepthRow struct {
	BidSize float64 `json:"bid_size"`
	Price   float64 `json:"price"`
	AskSize float64 `json:"ask_size"`
}

// Ladder 由一个合约的 WORKING 订单聚合出有界价格梯子。
// 展示窗口：有挂单时取 [最差价-5, 最优价+5] 并收敛到合约价格区间；
// 空盘口时以区间中点为中心开 ±5 的窗口。订单的可见量按冰山切片计，
// 双边皆零的行被剔除，输出按价格降序。不同合约的梯子互不相干。
func Ladder(in instrument.Instrument, orders []book.Order, now time.Time) []DepthRow {
	minp, maxp := in.MinPrice, in.MaxPrice

	live := make([]book.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status != book.StatusWorking || o.Expired(now) {
			continue
		}
		if o.LimitPrice < minp || o.LimitPrice > maxp {
			continue
		}
		live = append(live, o)
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LimitPrice > live[j].LimitPrice
	})

	var lo, hi float64
	if len(live) > 0 {
		hi = min(maxp, live[0].LimitPrice+5)
		lo = max(minp, live[len(live)-1].LimitPrice-5)
	} else {
		mid := in.Midpoint()
		hi = min(maxp, mid+5)
		lo = max(minp, mid-5)
	}

	base := int(lo)
	rows := make([]DepthRow, 0, int(hi)-base+1)
	for p := base; p <= int(hi); p++ {
		rows = append(rows, DepthRow{Price: float64(p)})
	}

	for _, o := range live {
		ix := int(o.LimitPrice - lo)
		if ix < 0 || ix >= len(rows) {
			continue
		}
		if o.IsBuy {
			rows[ix].BidSize += o.DisplaySize()
		} else {
			rows[ix].AskSize += o.DisplaySize()
		}
	}

	out := make([]DepthRow, 0, len(rows))
	for _, r := range rows {
		if r.BidSize != 0 || r.AskSize != 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Price > out[j].Price
	})
	return out
}
