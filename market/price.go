package market

import (
	"time"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
)

// Price 合约的即时市场价。已结算的合约直接用结算价；
// 否则取 (最优买价|min_price + 最优卖价|max_price) / 2。
func Price(in instrument.Instrument, b *book.Book, now time.Time) float64 {
	if in.IsSettled() {
		return in.ClosePrice
	}
	bid, ok := b.BestBid(now)
	if !ok || bid == 0 {
		bid = in.MinPrice
	}
	ask, ok := b.BestAsk(now)
	if !ok || ask == 0 {
		ask = in.MaxPrice
	}
	return (bid + ask) / 2
}
