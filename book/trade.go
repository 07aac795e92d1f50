package book

import "time"

// Trade 一笔成交记录，只由撮合引擎创建。数量与价格落库后不再变化，
// 唯一例外是结算作废时一次性写入 IsValid/InvalidReason。
type Trade struct {
	ID       int64
	Symbol   string
	Quantity float64
	// Price 永远取被动方（挂单方）的限价。
	Price       float64
	BuyOrderID  int64
	SellOrderID int64
	BuyTrader   string
	SellTrader  string
	// IsBuyerTaker 买方是否为主动方（吃单方）。
	IsBuyerTaker bool
	Timestamp    time.Time

	IsValid       bool
	InvalidReason string
}
