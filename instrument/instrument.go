package instrument

import "time"

// Instrument 可交易合约的静态参考数据，开始交易后不可变。
// 结算字段（ClosePrice/CloseDate/IsValid）仅在到期时写入一次。
type Instrument struct {
	Symbol    string
	Name      string
	Currency  string
	QtyUnit   string
	PriceUnit string

	QtyMult   float64
	PriceMult float64
	MinPrice  float64
	MaxPrice  float64
	PriceIncr float64
	QtyIncr   float64

	BeginTime  time.Time
	Expiration time.Time

	// 结算字段
	ClosePrice    float64
	CloseDate     time.Time
	IsValid       bool
	InvalidReason string
}

// IsLive 到期前返回 true；到期后仓位不再计入崩盘风险。
func (i *Instrument) IsLive(now time.Time) bool {
	return i.Expiration.After(now)
}

// IsSettled 结算价生效的条件：close_date 已写入且不早于到期时间。
func (i *Instrument) IsSettled() bool {
	return !i.CloseDate.IsZero() && !i.CloseDate.Before(i.Expiration)
}

// Midpoint 价格区间中点，空盘口时深度窗口以此为中心。
func (i *Instrument) Midpoint() float64 {
	return (i.MinPrice + i.MaxPrice) / 2
}
