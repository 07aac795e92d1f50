package engine_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core-go/book"
	"exchange-core-go/engine"
	"exchange-core-go/instrument"
	"exchange-core-go/risk"
	"exchange-core-go/store"
)

// stepClock 每次读取前进固定步长，保证补充切片拿到严格递增的
// priority_time。
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{
		t:    time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		step: time.Millisecond,
	}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testInstrument(symbol string) *instrument.Instrument {
	return &instrument.Instrument{
		Symbol:     symbol,
		Name:       symbol,
		Currency:   "EUR",
		QtyMult:    1,
		PriceMult:  1,
		MinPrice:   0,
		MaxPrice:   100,
		PriceIncr:  1,
		QtyIncr:    1,
		BeginTime:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Expiration: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		IsValid:    true,
	}
}

func newTestEngine(t *testing.T) (*engine.Engine, *stepClock) {
	t.Helper()
	reg := instrument.NewRegistry([]*instrument.Instrument{testInstrument("RAIN")})
	clock := newStepClock()
	e, err := engine.New(reg, nil, nil, nil, nil, clock)
	require.NoError(t, err)
	return e, clock
}

func sell(trader string, qty, price, show float64) engine.SubmitRequest {
	return engine.SubmitRequest{
		Trader: trader, Symbol: "RAIN", IsBuy: false,
		Quantity: qty, LimitPrice: price, MaxShowSize: show,
	}
}

func buy(trader string, qty, price, show float64) engine.SubmitRequest {
	return engine.SubmitRequest{
		Trader: trader, Symbol: "RAIN", IsBuy: true,
		Quantity: qty, LimitPrice: price, MaxShowSize: show,
	}
}

// TestSubmit_SimpleCross 同价买卖直接成交，价格取被动方限价
func TestSubmit_SimpleCross(t *testing.T) {
	e, _ := newTestEngine(t)

	resting, err := e.Submit(sell("alice", 25, 23, 0))
	require.NoError(t, err)
	assert.Equal(t, book.StatusWorking, resting.Status)
	assert.Equal(t, 25.0, resting.CurrSlice)

	taker, err := e.Submit(buy("bob", 25, 24, 0))
	require.NoError(t, err)
	assert.Equal(t, book.StatusCompleted, taker.Status)
	assert.Equal(t, 25.0, taker.FilledQuantity)

	trades := e.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 23.0, trades[0].Price) // 被动方限价
	assert.Equal(t, 25.0, trades[0].Quantity)
	assert.True(t, trades[0].IsBuyerTaker)
	assert.Equal(t, "bob", trades[0].BuyTrader)
	assert.Equal(t, "alice", trades[0].SellTrader)

	restingAfter, ok := e.Order(resting.ID)
	require.True(t, ok)
	assert.Equal(t, book.StatusCompleted, restingAfter.Status)
}

// TestSubmit_IcebergSymmetricCross 双方都是 100@23、切片 25 的冰山单，
// 挂单方被整整吃四轮，每轮补充后 priority_time 严格递增
func TestSubmit_IcebergSymmetricCross(t *testing.T) {
	e, _ := newTestEngine(t)

	resting, err := e.Submit(buy("alice", 100, 23, 25))
	require.NoError(t, err)
	assert.Equal(t, book.StatusWorking, resting.Status)
	assert.Equal(t, 25.0, resting.CurrSlice)

	taker, err := e.Submit(sell("bob", 100, 23, 25))
	require.NoError(t, err)
	assert.Equal(t, book.StatusCompleted, taker.Status)
	assert.Equal(t, 100.0, taker.FilledQuantity)
	assert.Equal(t, 0.0, taker.CurrSlice)

	trades := e.Trades()
	require.Len(t, trades, 4)
	for i, tr := range trades {
		assert.Equal(t, 25.0, tr.Quantity, "trade %d", i)
		assert.Equal(t, 23.0, tr.Price, "trade %d", i)
		assert.False(t, tr.IsBuyerTaker, "trade %d", i)
		assert.Equal(t, "alice", tr.BuyTrader, "trade %d", i)
		assert.Equal(t, "bob", tr.SellTrader, "trade %d", i)
		if i > 0 {
			// 每轮重启都重新读钟：成交时刻严格递增，夹在中间的
			// 补充时刻也就严格递增
			assert.True(t, tr.Timestamp.After(trades[i-1].Timestamp), "trade %d", i)
		}
	}

	restingAfter, ok := e.Order(resting.ID)
	require.True(t, ok)
	assert.Equal(t, book.StatusCompleted, restingAfter.Status)
	assert.Equal(t, 100.0, restingAfter.FilledQuantity)
	// 最后一次补充发生在第 3、4 笔成交之间
	assert.True(t, restingAfter.PriorityTime.After(restingAfter.BeginTime))
	assert.True(t, restingAfter.PriorityTime.After(trades[2].Timestamp))
	assert.True(t, trades[3].Timestamp.After(restingAfter.PriorityTime))
}

// TestSubmit_IcebergReplenishChain 两张冰山卖单交替补充切片，
// 成交序列与终态必须完全可复现
func TestSubmit_IcebergReplenishChain(t *testing.T) {
	e, _ := newTestEngine(t)

	a, err := e.Submit(sell("alice", 100, 55, 25))
	require.NoError(t, err)
	b, err := e.Submit(sell("bob", 20, 55, 7))
	require.NoError(t, err)

	c, err := e.Submit(buy("carol", 100, 56, 0))
	require.NoError(t, err)

	trades := e.Trades()
	wantQty := []float64{25, 7, 25, 7, 25, 6, 5}
	require.Len(t, trades, len(wantQty))
	for i, tr := range trades {
		assert.Equal(t, wantQty[i], tr.Quantity, "trade %d", i)
		assert.Equal(t, 55.0, tr.Price, "trade %d", i)
		assert.True(t, tr.IsBuyerTaker, "trade %d", i)
		assert.Equal(t, "carol", tr.BuyTrader, "trade %d", i)
	}

	assert.Equal(t, book.StatusCompleted, c.Status)
	assert.Equal(t, 100.0, c.FilledQuantity)

	aAfter, ok := e.Order(a.ID)
	require.True(t, ok)
	assert.Equal(t, book.StatusWorking, aAfter.Status)
	assert.Equal(t, 80.0, aAfter.FilledQuantity)
	assert.Equal(t, 20.0, aAfter.CurrSlice)
	// 补充过的切片丧失时间优先
	assert.True(t, aAfter.PriorityTime.After(aAfter.BeginTime))

	bAfter, ok := e.Order(b.ID)
	require.True(t, ok)
	assert.Equal(t, book.StatusCompleted, bAfter.Status)
	assert.Equal(t, 20.0, bAfter.FilledQuantity)
}

// TestSubmit_QuantityConservation 成交量合计与双方 filled 一致
func TestSubmit_QuantityConservation(t *testing.T) {
	e, _ := newTestEngine(t)

	a, err := e.Submit(sell("alice", 100, 55, 25))
	require.NoError(t, err)
	b, err := e.Submit(sell("bob", 20, 55, 7))
	require.NoError(t, err)
	c, err := e.Submit(buy("carol", 100, 56, 0))
	require.NoError(t, err)

	var total float64
	for _, tr := range e.Trades() {
		total += tr.Quantity
	}
	assert.Equal(t, c.FilledQuantity, total)

	aAfter, _ := e.Order(a.ID)
	bAfter, _ := e.Order(b.ID)
	assert.Equal(t, total, aAfter.FilledQuantity+bAfter.FilledQuantity)
}

// TestSubmit_PriceTimePriority 更优价格先成交，同价先到先得
func TestSubmit_PriceTimePriority(t *testing.T) {
	e, _ := newTestEngine(t)

	first, err := e.Submit(sell("alice", 10, 55, 0))
	require.NoError(t, err)
	second, err := e.Submit(sell("bob", 10, 55, 0))
	require.NoError(t, err)
	better, err := e.Submit(sell("carol", 10, 54, 0))
	require.NoError(t, err)

	_, err = e.Submit(buy("dave", 15, 56, 0))
	require.NoError(t, err)

	trades := e.Trades()
	require.Len(t, trades, 2)
	// 54 优先于 55；55 中先挂的 alice 优先
	assert.Equal(t, better.ID, trades[0].SellOrderID)
	assert.Equal(t, 54.0, trades[0].Price)
	assert.Equal(t, first.ID, trades[1].SellOrderID)
	assert.Equal(t, 5.0, trades[1].Quantity)

	secondAfter, _ := e.Order(second.ID)
	assert.Equal(t, 0.0, secondAfter.FilledQuantity)
}

// TestSubmit_NoCrossLeavesBothWorking 价格不交叉时双方都留在簿上
func TestSubmit_NoCrossLeavesBothWorking(t *testing.T) {
	e, _ := newTestEngine(t)

	s, err := e.Submit(sell("alice", 10, 60, 0))
	require.NoError(t, err)
	b, err := e.Submit(buy("bob", 10, 50, 0))
	require.NoError(t, err)

	assert.Equal(t, book.StatusWorking, s.Status)
	assert.Equal(t, book.StatusWorking, b.Status)
	assert.Empty(t, e.Trades())
}

// TestSubmit_Validation 校验失败的订单不进簿
func TestSubmit_Validation(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Submit(buy("alice", 0, 50, 0))
	assert.ErrorIs(t, err, engine.ErrInvalidQuantity)

	_, err = e.Submit(buy("alice", 10, 101, 0))
	assert.ErrorIs(t, err, engine.ErrPriceOutOfBounds)

	_, err = e.Submit(buy("alice", -5, 50, 0))
	assert.ErrorIs(t, err, engine.ErrInvalidQuantity)

	_, err = e.Submit(engine.SubmitRequest{
		Trader: "alice", Symbol: "NOPE", IsBuy: true, Quantity: 1, LimitPrice: 50,
	})
	assert.ErrorIs(t, err, instrument.ErrUnknownInstrument)

	assert.Empty(t, e.WorkingOrders("alice"))
}

// TestSubmit_ExpiredInstrument 到期合约拒单
func TestSubmit_ExpiredInstrument(t *testing.T) {
	e, clock := newTestEngine(t)
	clock.Advance(365 * 24 * time.Hour)

	_, err := e.Submit(buy("alice", 10, 50, 0))
	assert.ErrorIs(t, err, engine.ErrInstrumentExpired)
}

// TestSubmit_ExpiredOrdersExcluded 过期挂单不参与撮合
func TestSubmit_ExpiredOrdersExcluded(t *testing.T) {
	e, clock := newTestEngine(t)

	req := sell("alice", 10, 50, 0)
	req.Expiration = clock.t.Add(time.Minute)
	_, err := e.Submit(req)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	b, err := e.Submit(buy("bob", 10, 55, 0))
	require.NoError(t, err)
	assert.Equal(t, book.StatusWorking, b.Status)
	assert.Empty(t, e.Trades())
}

// TestSubmit_CreditRejectLeavesNoTrace 信用拒单不产生任何记录
func TestSubmit_CreditRejectLeavesNoTrace(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetGuard(&risk.CreditGuard{
		Credit:   zeroCredit{},
		Trades:   e,
		Prices:   e,
		Registry: e.Registry(),
	})

	_, err := e.Submit(buy("pauper", 10, 50, 0))
	assert.ErrorIs(t, err, risk.ErrInsufficientCredit)
	assert.Empty(t, e.WorkingOrders("pauper"))
	assert.Empty(t, e.Trades())

	rows, err := e.Depth("RAIN")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type zeroCredit struct{}

func (zeroCredit) CreditLimit(string) float64 { return 0 }

// TestCancel 只有挂单人能撤自己的 WORKING 单
func TestCancel(t *testing.T) {
	e, _ := newTestEngine(t)

	o, err := e.Submit(sell("alice", 10, 50, 0))
	require.NoError(t, err)

	_, err = e.Cancel("bob", o.ID)
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	_, err = e.Cancel("alice", 9999)
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	canceled, err := e.Cancel("alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, book.StatusCanceled, canceled.Status)

	// 终态订单不能再撤
	_, err = e.Cancel("alice", o.ID)
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	// 撤掉的单不再参与撮合
	b, err := e.Submit(buy("bob", 10, 55, 0))
	require.NoError(t, err)
	assert.Equal(t, book.StatusWorking, b.Status)
	assert.Empty(t, e.Trades())
}

// TestSettle 结算只允许一次，结算后市场价锁定为结算价
func TestSettle(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.Settle("RAIN", 42))
	assert.Equal(t, 42.0, e.MarketPrice("RAIN"))

	err := e.Settle("RAIN", 43)
	assert.ErrorIs(t, err, instrument.ErrAlreadySettled)
	assert.Equal(t, 42.0, e.MarketPrice("RAIN"))
}

// TestInvalidate 作废合约的成交不再计入仓位
func TestInvalidate(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Submit(sell("alice", 10, 50, 0))
	require.NoError(t, err)
	_, err = e.Submit(buy("bob", 10, 55, 0))
	require.NoError(t, err)
	require.Len(t, e.Trades(), 1)

	require.NoError(t, e.Invalidate("RAIN", "sensor failure"))

	trades := e.Trades()
	require.Len(t, trades, 1)
	assert.False(t, trades[0].IsValid)
	assert.Equal(t, "sensor failure", trades[0].InvalidReason)

	now := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, risk.Positions("alice", trades, e.Registry(), e, now))
}

// TestRecovery 重启后订单簿与成交序号从持久层恢复
func TestRecovery(t *testing.T) {
	st, err := store.OpenMem()
	require.NoError(t, err)
	defer st.Close()

	reg := instrument.NewRegistry([]*instrument.Instrument{testInstrument("RAIN")})
	clock := newStepClock()
	e1, err := engine.New(reg, st, nil, nil, nil, clock)
	require.NoError(t, err)

	o, err := e1.Submit(sell("alice", 10, 50, 0))
	require.NoError(t, err)
	_, err = e1.Submit(buy("bob", 4, 55, 0))
	require.NoError(t, err)

	reg2 := instrument.NewRegistry([]*instrument.Instrument{testInstrument("RAIN")})
	e2, err := engine.New(reg2, st, nil, nil, nil, clock)
	require.NoError(t, err)

	recovered, ok := e2.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, 6.0, recovered.Remaining())
	require.Len(t, e2.Trades(), 1)

	// 序号接着走，不会和恢复的订单撞号
	next, err := e2.Submit(buy("carol", 1, 55, 0))
	require.NoError(t, err)
	assert.Greater(t, next.ID, o.ID)

	require.Len(t, e2.Trades(), 2)
	assert.Greater(t, e2.Trades()[1].ID, e2.Trades()[0].ID)
}

// TestDepth_DisplaysSliceOnly 深度只展示冰山的当前切片
func TestDepth_DisplaysSliceOnly(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Submit(sell("alice", 100, 55, 25))
	require.NoError(t, err)

	rows, err := e.Depth("RAIN")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		if r.Price == 55 {
			assert.Equal(t, 25.0, r.AskSize)
			return
		}
	}
	t.Fatalf("price level 55 missing from depth: %+v", rows)
}
