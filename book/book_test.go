package book_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core-go/book"
)

var (
	t0  = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	far = time.Date(2126, 1, 1, 0, 0, 0, 0, time.UTC)
)

func working(id int64, isBuy bool, price float64, begin, priority time.Time) *book.Order {
	return &book.Order{
		ID: id, Symbol: "RAIN", Trader: "t", IsBuy: isBuy,
		Quantity: 10, LimitPrice: price, MaxShowSize: 10, CurrSlice: 10,
		Status: book.StatusWorking, BeginTime: begin, PriorityTime: priority,
		Expiration: far,
	}
}

// TestSortCandidates_Asymmetry 两个方向用不同的时间字段排序，
// 这是沿袭行为，不能统一
func TestSortCandidates_Asymmetry(t *testing.T) {
	// 卖方候选：id1 先挂但切片补充过（priority 晚），id2 后挂
	s1 := *working(1, false, 55, t0, t0.Add(5*time.Second))
	s2 := *working(2, false, 55, t0.Add(time.Second), t0.Add(time.Second))

	sells := []book.Order{s1, s2}
	book.SortCandidates(sells, true)
	assert.Equal(t, int64(2), sells[0].ID, "买单进场按 priority_time 排卖方")

	// 买方候选：同样的时间关系，却按 begin_time 排
	b1 := *working(3, true, 55, t0, t0.Add(5*time.Second))
	b2 := *working(4, true, 55, t0.Add(time.Second), t0.Add(time.Second))

	buys := []book.Order{b1, b2}
	book.SortCandidates(buys, false)
	assert.Equal(t, int64(3), buys[0].ID, "卖单进场按 begin_time 排买方")
}

func TestSortCandidates_PriceBeforeTime(t *testing.T) {
	s1 := *working(1, false, 56, t0, t0)
	s2 := *working(2, false, 55, t0.Add(time.Hour), t0.Add(time.Hour))
	sells := []book.Order{s1, s2}
	book.SortCandidates(sells, true)
	assert.Equal(t, int64(2), sells[0].ID, "价格优先于时间")

	b1 := *working(3, true, 54, t0, t0)
	b2 := *working(4, true, 55, t0.Add(time.Hour), t0.Add(time.Hour))
	buys := []book.Order{b1, b2}
	book.SortCandidates(buys, false)
	assert.Equal(t, int64(4), buys[0].ID, "买方按价格降序")
}

func TestCandidates_PriceBoundAndExpiry(t *testing.T) {
	b := book.New("RAIN")
	b.Add(working(1, false, 55, t0, t0))
	b.Add(working(2, false, 57, t0, t0)) // 超出买单限价

	expired := working(3, false, 55, t0, t0)
	expired.Expiration = t0.Add(time.Minute)
	b.Add(expired)

	done := working(4, false, 55, t0, t0)
	done.Status = book.StatusCompleted
	b.Add(done)

	now := t0.Add(time.Hour)
	cands := b.Candidates(true, 56, now)
	require.Len(t, cands, 1)
	assert.Equal(t, int64(1), cands[0].ID)
}

func TestApply_RemovesTerminalFromLevels(t *testing.T) {
	b := book.New("RAIN")
	o := working(1, false, 55, t0, t0)
	b.Add(o)

	_, ok := b.BestAsk(t0)
	require.True(t, ok)

	done := *o
	done.Status = book.StatusCompleted
	done.FilledQuantity = done.Quantity
	b.Apply([]book.Order{done})

	_, ok = b.BestAsk(t0)
	assert.False(t, ok)

	// 终态订单仍可按 ID 查询
	got, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, book.StatusCompleted, got.Status)
}

func TestBestBidAsk(t *testing.T) {
	b := book.New("RAIN")
	_, ok := b.BestBid(t0)
	assert.False(t, ok)

	b.Add(working(1, true, 40, t0, t0))
	b.Add(working(2, true, 45, t0, t0))
	b.Add(working(3, false, 50, t0, t0))
	b.Add(working(4, false, 48, t0, t0))

	bid, ok := b.BestBid(t0)
	require.True(t, ok)
	assert.Equal(t, 45.0, bid)

	ask, ok := b.BestAsk(t0)
	require.True(t, ok)
	assert.Equal(t, 48.0, ask)
}

func TestCompact_EvictsExpired(t *testing.T) {
	b := book.New("RAIN")
	o := working(1, true, 40, t0, t0)
	o.Expiration = t0.Add(time.Minute)
	b.Add(o)
	b.Add(working(2, true, 45, t0, t0))

	now := t0.Add(time.Hour)
	assert.Equal(t, 1, b.Compact(now))
	assert.Equal(t, 0, b.Compact(now))

	bid, ok := b.BestBid(now)
	require.True(t, ok)
	assert.Equal(t, 45.0, bid)
}

func TestOrder_DisplaySize(t *testing.T) {
	o := book.Order{Quantity: 100, MaxShowSize: 25, CurrSlice: 7}
	assert.Equal(t, 7.0, o.DisplaySize())

	// 切片为零时按剩余量重算
	o.CurrSlice = 0
	o.FilledQuantity = 90
	assert.Equal(t, 10.0, o.DisplaySize())
}
