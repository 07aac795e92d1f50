package book

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
)

// priceLevel 同一价位上的挂单集合，btree 按价格索引。
type priceLevel struct {
	price  float64
	orders []*Order
}

func levelLess(a, b *priceLevel) bool { return a.price < b.price }

// Book 单个合约的订单簿：持有全部订单，WORKING 订单按价位挂在
// 买/卖两棵 btree 上，负责回答价格优先级查询。跨合约互不共享。
type Book struct {
	Symbol string

	mu     sync.RWMutex
	bids   *btree.BTreeG[*priceLevel]
	asks   *btree.BTreeG[*priceLevel]
	orders map[int64]*Order
}

func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   btree.NewG(2, levelLess),
		asks:   btree.NewG(2, levelLess),
		orders: make(map[int64]*Order),
	}
}

func (b *Book) side(isBuy bool) *btree.BTreeG[*priceLevel] {
	if isBuy {
		return b.bids
	}
	return b.asks
}

// Add 登记订单；仅 WORKING 订单进入价位索引。
func (b *Book) Add(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
	if o.Status != StatusWorking {
		return
	}
	b.insertLocked(o)
}

func (b *Book) insertLocked(o *Order) {
	tree := b.side(o.IsBuy)
	key := &priceLevel{price: o.LimitPrice}
	lv, ok := tree.Get(key)
	if !ok {
		lv = &priceLevel{price: o.LimitPrice}
		tree.ReplaceOrInsert(lv)
	}
	lv.orders = append(lv.orders, o)
}

func (b *Book) removeFromLevelLocked(o *Order) {
	tree := b.side(o.IsBuy)
	lv, ok := tree.Get(&priceLevel{price: o.LimitPrice})
	if !ok {
		return
	}
	for i, cur := range lv.orders {
		if cur.ID == o.ID {
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			break
		}
	}
	if len(lv.orders) == 0 {
		tree.Delete(lv)
	}
}

// Get 返回订单拷贝。
func (b *Book) Get(id int64) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Candidates 返回一次撮合尝试的对手方快照（拷贝），快照在撮合过程中
// 不刷新。排序约定必须精确保持：
//   - 买单进场：卖方候选按 (limit_price 升序, priority_time 升序)；
//   - 卖单进场：买方候选按 (limit_price 降序, begin_time 升序)。
//
// 两侧使用不同的时间字段是沿袭下来的行为，不做统一。
// 过期候选静默排除。
func (b *Book) Candidates(incomingIsBuy bool, limitPrice float64, now time.Time) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Order
	collect := func(lv *priceLevel) {
		for _, o := range lv.orders {
			if o.Status != StatusWorking || o.Expired(now) {
				continue
			}
			out = append(out, *o)
		}
	}
	if incomingIsBuy {
		// 对手方是卖单：价格不高于买单限价。
		b.asks.Ascend(func(lv *priceLevel) bool {
			if lv.price > limitPrice {
				return false
			}
			collect(lv)
			return true
		})
	} else {
		// 对手方是买单：价格不低于卖单限价。
		b.bids.Descend(func(lv *priceLevel) bool {
			if lv.price < limitPrice {
				return false
			}
			collect(lv)
			return true
		})
	}
	SortCandidates(out, incomingIsBuy)
	return out
}

// SortCandidates 应用上述非对称排序。撮合重启后叠加了未提交修改的
// 候选集要用同一比较器重排。
func SortCandidates(orders []Order, incomingIsBuy bool) {
	if incomingIsBuy {
		sort.SliceStable(orders, func(i, j int) bool {
			if orders[i].LimitPrice != orders[j].LimitPrice {
				return orders[i].LimitPrice < orders[j].LimitPrice
			}
			return orders[i].PriorityTime.Before(orders[j].PriorityTime)
		})
		return
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].LimitPrice != orders[j].LimitPrice {
			return orders[i].LimitPrice > orders[j].LimitPrice
		}
		return orders[i].BeginTime.Before(orders[j].BeginTime)
	})
}

// Working 返回全部 WORKING 订单的拷贝，供深度/行情只读使用。
func (b *Book) Working() []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.Status == StatusWorking {
			res = append(res, *o)
		}
	}
	return res
}

// Apply 一次撮合尝试产生的全部订单变更原子落地到内存索引。
// 先持久化成功再调用，避免读到半更新状态。
func (b *Book) Apply(mutated []Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range mutated {
		cur, ok := b.orders[m.ID]
		if !ok {
			cp := m
			b.orders[m.ID] = &cp
			if cp.Status == StatusWorking {
				b.insertLocked(&cp)
			}
			continue
		}
		wasWorking := cur.Status == StatusWorking
		*cur = m
		if wasWorking && cur.Status != StatusWorking {
			b.removeFromLevelLocked(cur)
		}
	}
}

// BestBid 未过期 WORKING 买单的最高限价；无则 ok=false。
func (b *Book) BestBid(now time.Time) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLocked(b.bids, now, false)
}

// BestAsk 未过期 WORKING 卖单的最低限价；无则 ok=false。
func (b *Book) BestAsk(now time.Time) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLocked(b.asks, now, true)
}

func bestLocked(tree *btree.BTreeG[*priceLevel], now time.Time, ascending bool) (float64, bool) {
	var price float64
	var found bool
	visit := func(lv *priceLevel) bool {
		for _, o := range lv.orders {
			if o.Status == StatusWorking && !o.Expired(now) {
				price = lv.price
				found = true
				return false
			}
		}
		return true
	}
	if ascending {
		tree.Ascend(visit)
	} else {
		tree.Descend(visit)
	}
	return price, found
}

// Compact 把过期订单从价位索引里摘掉。候选与深度本来就按过期过滤，
// 这里只是回收索引空间。
func (b *Book) Compact(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expired []*Order
	for _, o := range b.orders {
		if o.Status == StatusWorking && o.Expired(now) {
			expired = append(expired, o)
		}
	}
	for _, o := range expired {
		b.removeFromLevelLocked(o)
	}
	return len(expired)
}

// Len 当前登记的订单总数（含终态）。
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
