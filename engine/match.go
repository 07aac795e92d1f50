package engine

import (
	"fmt"
	"time"

	"exchange-core-go/book"
)

// unitOfWork 一次撮合尝试内累积的全部变更：被碰到的对手单、
// 产生的成交。提交前对订单簿和任何读者都不可见。
type unitOfWork struct {
	orders map[int64]*book.Order
	trades []book.Trade
}

func newUnitOfWork() *unitOfWork {
	return &unitOfWork{orders: make(map[int64]*book.Order)}
}

func (u *unitOfWork) put(o book.Order) {
	cp := o
	u.orders[o.ID] = &cp
}

// mutatedOrders 本次尝试改动过的对手单（不含进场单）。
func (u *unitOfWork) mutatedOrders() []book.Order {
	res := make([]book.Order, 0, len(u.orders))
	for _, o := range u.orders {
		res = append(res, *o)
	}
	return res
}

// match 把进场单与订单簿撮合。原始逻辑是函数在簿变更后对同一张单
// 递归调用自身；这里改写为显式的有界循环：重取候选、尝试成交、
// 当（剩余量 > 0 且本轮发生过冰山补充）时再来一轮。终止性：每轮
// 要么吃满进场单，要么严格消耗簿内可撮合总量（补充上限有限）。
//
// 候选快照取一次后本轮内不刷新；重启时叠加本尝试内未提交的变更后
// 用同一比较器重排（补充过的切片在其价位上丧失时间优先）。
func (e *Engine) match(b *book.Book, incoming *book.Order, now time.Time) (*unitOfWork, error) {
	uow := newUnitOfWork()
	remaining := incoming.Quantity - incoming.FilledQuantity

	for remaining > 0 {
		restart := false

		cands := b.Candidates(incoming.IsBuy, incoming.LimitPrice, now)
		merged := make([]book.Order, 0, len(cands))
		for _, c := range cands {
			if m, ok := uow.orders[c.ID]; ok {
				if m.Status != book.StatusWorking {
					continue
				}
				c = *m
			}
			merged = append(merged, c)
		}
		book.SortCandidates(merged, incoming.IsBuy)

		for _, other := range merged {
			avail := other.CurrSlice
			if avail <= 0 {
				continue
			}
			var tradeQty float64
			if avail >= remaining {
				tradeQty = remaining
				remaining = 0
			} else {
				tradeQty = avail
				remaining -= tradeQty
			}

			other.FilledQuantity += tradeQty
			other.CurrSlice -= tradeQty

			replenished := false
			if other.CurrSlice == 0 {
				// 切片吃完：从隐藏量里补一片，补上的切片在该价位
				// 丧失时间优先。
				other.CurrSlice = min(other.MaxShowSize, other.Quantity-other.FilledQuantity)
				other.PriorityTime = e.clock.Now()
				replenished = other.CurrSlice != 0
			}

			incoming.FilledQuantity += tradeQty

			if other.FilledQuantity > other.Quantity || incoming.FilledQuantity > incoming.Quantity {
				return nil, fmt.Errorf("%w: order %d filled %.4f > quantity", ErrInvariantViolated,
					other.ID, other.FilledQuantity)
			}
			if other.FilledQuantity == other.Quantity {
				other.Status = book.StatusCompleted
			}
			if incoming.FilledQuantity == incoming.Quantity {
				incoming.Status = book.StatusCompleted
			}
			uow.put(other)

			buyID, sellID := incoming.ID, other.ID
			buyTrader, sellTrader := incoming.Trader, other.Trader
			if !incoming.IsBuy {
				buyID, sellID = other.ID, incoming.ID
				buyTrader, sellTrader = other.Trader, incoming.Trader
			}
			uow.trades = append(uow.trades, book.Trade{
				ID:           e.nextTradeID(),
				Symbol:       incoming.Symbol,
				Quantity:     tradeQty,
				Price:        other.LimitPrice,
				BuyOrderID:   buyID,
				SellOrderID:  sellID,
				BuyTrader:    buyTrader,
				SellTrader:   sellTrader,
				IsBuyerTaker: incoming.IsBuy,
				Timestamp:    e.clock.Now(),
				IsValid:      true,
			})

			if remaining == 0 {
				break
			}
			if replenished {
				// 快照里的优先级可能已失效，且簿内出现了新的可
				// 撮合量：放弃剩余候选，整个尝试从头再来。
				restart = true
				break
			}
		}

		if !restart {
			break
		}
	}

	// 留在簿上的单永远带着按剩余量算好的展示切片。
	incoming.CurrSlice = min(incoming.MaxShowSize, incoming.Quantity-incoming.FilledQuantity)
	return uow, nil
}
