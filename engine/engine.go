package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"exchange-core-go/book"
	"exchange-core-go/infrastructure/logger"
	"exchange-core-go/instrument"
	"exchange-core-go/market"
	"exchange-core-go/monitor"
	"exchange-core-go/risk"
	"exchange-core-go/store"
)

// defaultExpiration GTC 订单的名义过期时间。
const defaultExpirationYears = 100

// Engine 撮合引擎：订单准入（校验+信用闸门）、价格时间优先撮合、
// 冰山披露、成交落账与出站通知。每个合约一把写锁，一次撮合尝试
// （含全部重启轮次）持锁完成；合约之间完全独立。
type Engine struct {
	reg   *instrument.Registry
	store *store.Store
	pub   market.Publisher
	guard risk.Guard
	log   *logger.Logger
	mon   *monitor.Monitor
	clock risk.Clock

	mu         sync.RWMutex
	books      map[string]*book.Book
	locks      map[string]*sync.Mutex
	orderIndex map[int64]string // order id -> symbol
	trades     []book.Trade

	seqMu    sync.Mutex
	orderSeq int64
	tradeSeq int64
}

// New 构建引擎并从持久层恢复订单簿与成交历史。
func New(reg *instrument.Registry, st *store.Store, pub market.Publisher, log *logger.Logger, mon *monitor.Monitor, clock risk.Clock) (*Engine, error) {
	if pub == nil {
		pub = market.NopPublisher{}
	}
	if clock == nil {
		clock = risk.NowUTC
	}
	e := &Engine{
		reg:        reg,
		store:      st,
		pub:        pub,
		log:        log,
		mon:        mon,
		clock:      clock,
		books:      make(map[string]*book.Book),
		locks:      make(map[string]*sync.Mutex),
		orderIndex: make(map[int64]string),
	}
	for _, in := range reg.List() {
		e.books[in.Symbol] = book.New(in.Symbol)
		e.locks[in.Symbol] = &sync.Mutex{}
	}
	if st != nil {
		if err := e.recover(); err != nil {
			return nil, fmt.Errorf("recover state: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) recover() error {
	orders, err := e.store.LoadOrders()
	if err != nil {
		return err
	}
	for i := range orders {
		o := orders[i]
		b, ok := e.books[o.Symbol]
		if !ok {
			continue
		}
		cp := o
		b.Add(&cp)
		e.orderIndex[o.ID] = o.Symbol
		if o.ID > e.orderSeq {
			e.orderSeq = o.ID
		}
	}
	trades, err := e.store.LoadTrades()
	if err != nil {
		return err
	}
	e.trades = trades
	for _, t := range trades {
		if t.ID > e.tradeSeq {
			e.tradeSeq = t.ID
		}
	}
	return nil
}

// SetGuard 注入事前风控链。引擎自身实现 PriceSource/TradeSource，
// 信用闸门要等引擎建好才能组装。
func (e *Engine) SetGuard(g risk.Guard) {
	e.guard = g
}

func (e *Engine) nextOrderID() int64 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	e.orderSeq++
	return e.orderSeq
}

func (e *Engine) nextTradeID() int64 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	e.tradeSeq++
	return e.tradeSeq
}

func (e *Engine) bookOf(symbol string) (*book.Book, *sync.Mutex, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[symbol]
	if !ok {
		return nil, nil, false
	}
	return b, e.locks[symbol], true
}

// SubmitRequest 来自表示层的下单请求。
type SubmitRequest struct {
	Trader      string
	Account     string
	Symbol      string
	IsBuy       bool
	Quantity    float64
	LimitPrice  float64
	MaxShowSize float64   // 0 表示全量展示
	Expiration  time.Time // 零值表示 GTC
}

// Submit 订单准入与撮合：校验 -> 信用闸门 -> 撮合 -> 原子提交 ->
// 事件通知。拒单（校验/信用）不产生任何簿内或持久化副作用。
func (e *Engine) Submit(req SubmitRequest) (book.Order, error) {
	in, err := e.reg.Get(req.Symbol)
	if err != nil {
		return book.Order{}, err
	}
	now := e.clock.Now()
	if err := validate(in, req, now); err != nil {
		if e.mon != nil {
			e.mon.OrderRejected(rejectReason(err))
		}
		return book.Order{}, err
	}
	if e.guard != nil {
		if err := e.guard.PreOrder(req.Trader, in, req.IsBuy, req.Quantity, req.LimitPrice); err != nil {
			if e.mon != nil {
				e.mon.CreditReject()
			}
			if e.log != nil {
				e.log.LogRisk("credit_rejected", map[string]interface{}{
					"trader": req.Trader, "symbol": req.Symbol,
					"quantity": req.Quantity, "limit_price": req.LimitPrice,
				})
			}
			return book.Order{}, err
		}
	}

	b, lock, ok := e.bookOf(req.Symbol)
	if !ok {
		return book.Order{}, fmt.Errorf("%w: %s", instrument.ErrUnknownInstrument, req.Symbol)
	}

	mss := req.MaxShowSize
	if mss <= 0 {
		mss = req.Quantity
	}
	account := req.Account
	if account == "" {
		account = req.Trader + " a/c"
	}
	expiration := req.Expiration
	if expiration.IsZero() {
		expiration = now.AddDate(defaultExpirationYears, 0, 0)
	}

	lock.Lock()
	defer lock.Unlock()

	incoming := book.Order{
		ID:           e.nextOrderID(),
		Symbol:       req.Symbol,
		Trader:       req.Trader,
		Account:      account,
		IsBuy:        req.IsBuy,
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		MaxShowSize:  mss,
		Status:       book.StatusWorking,
		BeginTime:    now,
		PriorityTime: now,
		Expiration:   expiration,
	}

	started := time.Now()
	uow, err := e.match(b, &incoming, now)
	if err != nil {
		if e.log != nil {
			e.log.LogError(err, map[string]interface{}{
				"stage": "match", "symbol": req.Symbol, "order_id": incoming.ID,
			})
		}
		return book.Order{}, err
	}

	mutated := append(uow.mutatedOrders(), incoming)
	if err := e.commit(mutated, uow.trades); err != nil {
		return book.Order{}, err
	}

	b.Apply(mutated)
	e.mu.Lock()
	e.orderIndex[incoming.ID] = incoming.Symbol
	e.trades = append(e.trades, uow.trades...)
	e.mu.Unlock()

	if e.mon != nil {
		e.mon.OrderAccepted()
		e.mon.MatchingDone(time.Since(started), len(uow.trades))
		for _, t := range uow.trades {
			e.mon.TradeBooked(t.Quantity)
		}
		e.updateBookStats(req.Symbol, b, now)
	}
	if e.log != nil {
		e.log.LogOrder("accepted", incoming.ID, map[string]interface{}{
			"symbol": incoming.Symbol, "trader": incoming.Trader,
			"is_buy": incoming.IsBuy, "quantity": incoming.Quantity,
			"limit_price": incoming.LimitPrice, "filled": incoming.FilledQuantity,
			"status": string(incoming.Status), "trades": len(uow.trades),
		})
	}

	e.publishOrder(incoming)
	for _, t := range uow.trades {
		e.publishTrade(t)
	}
	e.publishDepth(in, b)
	return incoming, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "quantity"
	case errors.Is(err, ErrPriceOutOfBounds):
		return "price_bounds"
	case errors.Is(err, ErrInstrumentExpired):
		return "expired"
	case errors.Is(err, ErrInstrumentInvalid):
		return "invalidated"
	default:
		return "other"
	}
}

func validate(in instrument.Instrument, req SubmitRequest, now time.Time) error {
	if !in.IsValid {
		return fmt.Errorf("%w: %s", ErrInstrumentInvalid, in.Symbol)
	}
	if !in.IsLive(now) {
		return fmt.Errorf("%w: %s", ErrInstrumentExpired, in.Symbol)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: %.4f", ErrInvalidQuantity, req.Quantity)
	}
	if req.LimitPrice < in.MinPrice || req.LimitPrice > in.MaxPrice {
		return fmt.Errorf("%w: %.4f not in [%.2f, %.2f]", ErrPriceOutOfBounds,
			req.LimitPrice, in.MinPrice, in.MaxPrice)
	}
	return nil
}

func (e *Engine) updateBookStats(symbol string, b *book.Book, now time.Time) {
	bid, _ := b.BestBid(now)
	ask, _ := b.BestAsk(now)
	e.mon.SetBookStats(symbol, len(b.Working()), bid, ask)
}

// commit 一次撮合尝试的持久化边界：订单变更和成交要么全部落盘，
// 要么全部放弃。
func (e *Engine) commit(orders []book.Order, trades []book.Trade) error {
	if e.store == nil {
		return nil
	}
	batch := e.store.NewBatch()
	for _, o := range orders {
		if err := batch.PutOrder(o); err != nil {
			batch.Discard()
			return err
		}
	}
	for _, t := range trades {
		if err := batch.PutTrade(t); err != nil {
			batch.Discard()
			return err
		}
	}
	return batch.Commit()
}

// Cancel WORKING -> CANCELED，只有挂单人自己可以撤。与同合约的
// 撮合共用一把锁，撤单和成交竞态时以先提交者为准，输家干净地失败。
func (e *Engine) Cancel(trader string, orderID int64) (book.Order, error) {
	e.mu.RLock()
	symbol, ok := e.orderIndex[orderID]
	e.mu.RUnlock()
	if !ok {
		return book.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	b, lock, ok := e.bookOf(symbol)
	if !ok {
		return book.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}

	lock.Lock()
	defer lock.Unlock()

	o, ok := b.Get(orderID)
	if !ok || o.Trader != trader || o.Status != book.StatusWorking {
		return book.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	o.Status = book.StatusCanceled
	if err := e.commit([]book.Order{o}, nil); err != nil {
		return book.Order{}, err
	}
	b.Apply([]book.Order{o})

	if e.mon != nil {
		e.mon.OrderCanceled()
		e.updateBookStats(symbol, b, e.clock.Now())
	}
	if e.log != nil {
		e.log.LogOrder("canceled", o.ID, map[string]interface{}{
			"symbol": o.Symbol, "trader": o.Trader,
		})
	}
	e.publishOrder(o)
	if in, err := e.reg.Get(symbol); err == nil {
		e.publishDepth(in, b)
	}
	return o, nil
}

// Depth 合约的即时深度梯子。
func (e *Engine) Depth(symbol string) ([]market.DepthRow, error) {
	in, err := e.reg.Get(symbol)
	if err != nil {
		return nil, err
	}
	b, _, ok := e.bookOf(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", instrument.ErrUnknownInstrument, symbol)
	}
	return market.Ladder(in, b.Working(), e.clock.Now()), nil
}

// MarketPrice 实现 risk.PriceSource。
func (e *Engine) MarketPrice(symbol string) float64 {
	in, err := e.reg.Get(symbol)
	if err != nil {
		return 0
	}
	b, _, ok := e.bookOf(symbol)
	if !ok {
		return 0
	}
	return market.Price(in, b, e.clock.Now())
}

// Trades 实现 risk.TradeSource，返回成交历史的拷贝。
func (e *Engine) Trades() []book.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res := make([]book.Trade, len(e.trades))
	copy(res, e.trades)
	return res
}

// Order 按 ID 查单。
func (e *Engine) Order(orderID int64) (book.Order, bool) {
	e.mu.RLock()
	symbol, ok := e.orderIndex[orderID]
	e.mu.RUnlock()
	if !ok {
		return book.Order{}, false
	}
	b, _, ok := e.bookOf(symbol)
	if !ok {
		return book.Order{}, false
	}
	return b.Get(orderID)
}

// WorkingOrders 某交易员当前全部未过期的 WORKING 挂单。
func (e *Engine) WorkingOrders(trader string) []book.Order {
	now := e.clock.Now()
	var res []book.Order
	e.mu.RLock()
	books := make([]*book.Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()
	for _, b := range books {
		for _, o := range b.Working() {
			if o.Trader == trader && !o.Expired(now) {
				res = append(res, o)
			}
		}
	}
	return res
}

// CompactBooks 把过期挂单从各簿的价位索引摘除，返回摘除数。
func (e *Engine) CompactBooks() int {
	now := e.clock.Now()
	var n int
	e.mu.RLock()
	books := make([]*book.Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()
	for _, b := range books {
		n += b.Compact(now)
	}
	return n
}

// Now 引擎时钟的当前读数，对外的估值查询统一走它。
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Registry 暴露只读参考数据。
func (e *Engine) Registry() *instrument.Registry {
	return e.reg
}
