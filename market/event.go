package market

import "time"

// EventType 出站事件类型。
type EventType string

const (
	EventOrder EventType = "Order"
	EventTrade EventType = "Trade"
	EventDepth EventType = "Depth"
)

// Event 推给通知端的出站事件信封。发送方 fire-and-forget，
// 不保证跨合约的顺序，投递重试是下游的事。
type Event struct {
	Type    EventType   `json:"_type"`
	TS      time.Time   `json:"ts"`
	Symbol  string      `json:"symbol"`
	Payload interface{} `json:"payload"`
}

// OrderUpdate 订单事件载荷。
type OrderUpdate struct {
	ID             int64   `json:"id"`
	BeginTime      string  `json:"begin_time"`
	Symbol         string  `json:"symbol"`
	Account        string  `json:"account"`
	Trader         string  `json:"trader"`
	IsBuy          bool    `json:"is_buy"`
	Quantity       float64 `json:"quantity"`
	LimitPrice     float64 `json:"limit_price"`
	FilledQuantity float64 `json:"filled_quantity"`
	CurrSlice      float64 `json:"curr_slice"`
	MaxShowSize    float64 `json:"max_show_size"`
	Status         string  `json:"status"`
}

// TradeTick 成交事件载荷。
type TradeTick struct {
	Buyer        string  `json:"buyer"`
	Seller       string  `json:"seller"`
	Symbol       string  `json:"symbol"`
	IsBuyerTaker bool    `json:"is_buy"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
}

// DepthUpdate 深度事件载荷：整张梯子全量推送。
type DepthUpdate struct {
	Symbol string     `json:"symbol"`
	Ladder []DepthRow `json:"ladder"`
}
