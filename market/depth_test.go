package market_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
	"exchange-core-go/market"
)

var (
	now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	far = time.Date(2126, 1, 1, 0, 0, 0, 0, time.UTC)
)

func rainInstrument() instrument.Instrument {
	return instrument.Instrument{
		Symbol: "RAIN", QtyMult: 1, PriceMult: 1,
		MinPrice: 0, MaxPrice: 100,
		Expiration: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		IsValid:    true,
	}
}

func workingOrder(isBuy bool, price, qty, slice float64) book.Order {
	return book.Order{
		Symbol: "RAIN", IsBuy: isBuy, Quantity: qty,
		LimitPrice: price, MaxShowSize: slice, CurrSlice: slice,
		Status: book.StatusWorking, Expiration: far,
	}
}

// TestLadder_WindowAndAggregation 梯子窗口、聚合与降序输出
func TestLadder_WindowAndAggregation(t *testing.T) {
	in := rainInstrument()
	orders := []book.Order{
		workingOrder(true, 40, 10, 10),
		workingOrder(true, 40, 5, 5), // 同价位累加
		workingOrder(false, 45, 8, 8),
	}

	rows := market.Ladder(in, orders, now)
	require.Len(t, rows, 2)

	// 降序：先 45 后 40
	assert.Equal(t, 45.0, rows[0].Price)
	assert.Equal(t, 8.0, rows[0].AskSize)
	assert.Equal(t, 0.0, rows[0].BidSize)

	assert.Equal(t, 40.0, rows[1].Price)
	assert.Equal(t, 15.0, rows[1].BidSize)
}

// TestLadder_IcebergShowsSliceOnly 冰山单只露出当前切片
func TestLadder_IcebergShowsSliceOnly(t *testing.T) {
	in := rainInstrument()
	iceberg := workingOrder(false, 55, 100, 25)
	iceberg.CurrSlice = 7

	rows := market.Ladder(in, []book.Order{iceberg}, now)
	require.Len(t, rows, 1)
	assert.Equal(t, 7.0, rows[0].AskSize)
}

// TestLadder_FiltersExpiredAndTerminal 过期与终态订单不出现
func TestLadder_FiltersExpiredAndTerminal(t *testing.T) {
	in := rainInstrument()

	expired := workingOrder(true, 40, 10, 10)
	expired.Expiration = now.Add(-time.Minute)

	done := workingOrder(true, 41, 10, 10)
	done.Status = book.StatusCompleted

	outOfBounds := workingOrder(true, 140, 10, 10)

	rows := market.Ladder(in, []book.Order{expired, done, outOfBounds}, now)
	assert.Empty(t, rows)
}

// TestLadder_WindowClampedToBounds 窗口不越过合约价格区间
func TestLadder_WindowClampedToBounds(t *testing.T) {
	in := rainInstrument()
	in.MaxPrice = 57

	rows := market.Ladder(in, []book.Order{workingOrder(false, 55, 10, 10)}, now)
	require.Len(t, rows, 1)
	assert.Equal(t, 55.0, rows[0].Price)
}

func TestPrice(t *testing.T) {
	in := rainInstrument()
	b := book.New("RAIN")

	// 空盘口：(min + max) / 2
	assert.Equal(t, 50.0, market.Price(in, b, now))

	bid := workingOrder(true, 40, 10, 10)
	bid.ID = 1
	b.Add(&bid)
	assert.Equal(t, 70.0, market.Price(in, b, now)) // (40+100)/2

	ask := workingOrder(false, 48, 10, 10)
	ask.ID = 2
	b.Add(&ask)
	assert.Equal(t, 44.0, market.Price(in, b, now)) // (40+48)/2
}

// TestPrice_Settled 结算后市场价锁定为结算价
func TestPrice_Settled(t *testing.T) {
	in := rainInstrument()
	in.ClosePrice = 42
	in.CloseDate = in.Expiration.Add(time.Hour)

	b := book.New("RAIN")
	bid := workingOrder(true, 40, 10, 10)
	bid.ID = 1
	b.Add(&bid)

	assert.Equal(t, 42.0, market.Price(in, b, now))
}

// TestPrice_ZeroBidFallsBack 最优买价为 0 时回退到 min_price
func TestPrice_ZeroBidFallsBack(t *testing.T) {
	in := rainInstrument()
	in.MinPrice = 0

	b := book.New("RAIN")
	bid := workingOrder(true, 0, 10, 10)
	bid.ID = 1
	b.Add(&bid)
	ask := workingOrder(false, 10, 10, 10)
	ask.ID = 2
	b.Add(&ask)

	assert.Equal(t, 5.0, market.Price(in, b, now))
}
