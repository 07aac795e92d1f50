package book

import "time"

// Status represents order lifecycle.
type Status string

const (
	StatusWorking   Status = "WORKING"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal 终态订单不再参与撮合，也不会复活。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Order 一张限价单。冰山单只展示 CurrSlice，剩余量隐藏在
// Quantity-FilledQuantity 中，切片吃完后补充并重置 PriorityTime。
type Order struct {
	ID      int64
	Symbol  string
	Trader  string
	Account string

	IsBuy          bool
	Quantity       float64
	LimitPrice     float64
	MaxShowSize    float64
	CurrSlice      float64
	FilledQuantity float64
	Status         Status

	BeginTime    time.Time
	PriorityTime time.Time
	Expiration   time.Time
}

// Remaining 未成交数量。
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// DisplaySize 深度图使用的展示数量：切片非零用切片，
// 否则按剩余量重算一个切片。
func (o *Order) DisplaySize() float64 {
	if o.CurrSlice != 0 {
		return o.CurrSlice
	}
	return min(o.MaxShowSize, o.Quantity-o.FilledQuantity)
}

// Expired 过期订单在撮合与深度中被静默排除，不报错。
func (o *Order) Expired(now time.Time) bool {
	return o.Expiration.Before(now)
}
