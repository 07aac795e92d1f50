package engine

import (
	"time"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
	"exchange-core-go/market"
)

func (e *Engine) publishOrder(o book.Order) {
	e.pub.Publish(market.Event{
		Type:   market.EventOrder,
		TS:     e.clock.Now(),
		Symbol: o.Symbol,
		Payload: market.OrderUpdate{
			ID:             o.ID,
			BeginTime:      o.BeginTime.Format(time.RFC3339Nano),
			Symbol:         o.Symbol,
			Account:        o.Account,
			Trader:         o.Trader,
			IsBuy:          o.IsBuy,
			Quantity:       o.Quantity,
			LimitPrice:     o.LimitPrice,
			FilledQuantity: o.FilledQuantity,
			CurrSlice:      o.CurrSlice,
			MaxShowSize:    o.MaxShowSize,
			Status:         string(o.Status),
		},
	})
}

func (e *Engine) publishTrade(t book.Trade) {
	e.pub.Publish(market.Event{
		Type:   market.EventTrade,
		TS:     e.clock.Now(),
		Symbol: t.Symbol,
		Payload: market.TradeTick{
			Buyer:        t.BuyTrader,
			Seller:       t.SellTrader,
			Symbol:       t.Symbol,
			IsBuyerTaker: t.IsBuyerTaker,
			Quantity:     t.Quantity,
			Price:        t.Price,
		},
	})
}

func (e *Engine) publishDepth(in instrument.Instrument, b *book.Book) {
	e.pub.Publish(market.Event{
		Type:   market.EventDepth,
		TS:     e.clock.Now(),
		Symbol: in.Symbol,
		Payload: market.DepthUpdate{
			Symbol: in.Symbol,
			Ladder: market.Ladder(in, b.Working(), e.clock.Now()),
		},
	})
}
