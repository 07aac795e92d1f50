package instrument

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrAlreadySettled    = errors.New("instrument already settled")
)

// Registry 在构造时一次性装载全部合约，之后只读。
// 唯一允许的写操作是到期结算（Settle/Invalidate），且只能成功一次。
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

func NewRegistry(instruments []*Instrument) *Registry {
	m := make(map[string]*Instrument, len(instruments))
	for _, in := range instruments {
		cp := *in
		if !cp.IsValid && cp.InvalidReason == "" {
			cp.IsValid = true
		}
		m[cp.Symbol] = &cp
	}
	return &Registry{instruments: m}
}

// Get 返回合约的拷贝，调用方不能借此修改注册表。
func (r *Registry) Get(symbol string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.instruments[symbol]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return *in, nil
}

// List 按到期时间升序返回全部合约。
func (r *Registry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Instrument, 0, len(r.instruments))
	for _, in := range r.instruments {
		res = append(res, *in)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Expiration.Equal(res[j].Expiration) {
			return res[i].Symbol < res[j].Symbol
		}
		return res[i].Expiration.Before(res[j].Expiration)
	})
	return res
}

// Settle 写入结算价。close_date = 到期后一小时，使 IsSettled 成立。
func (r *Registry) Settle(symbol string, closePrice float64) (Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.instruments[symbol]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	if in.IsSettled() || !in.IsValid {
		return Instrument{}, fmt.Errorf("%w: %s", ErrAlreadySettled, symbol)
	}
	in.ClosePrice = closePrice
	in.CloseDate = in.Expiration.Add(time.Hour)
	return *in, nil
}

// Invalidate 标记合约作废（例如赛事取消），与 Settle 互斥，同样只能一次。
func (r *Registry) Invalidate(symbol string, reason string) (Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.instruments[symbol]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	if in.IsSettled() || !in.IsValid {
		return Instrument{}, fmt.Errorf("%w: %s", ErrAlreadySettled, symbol)
	}
	in.IsValid = false
	in.InvalidReason = reason
	return *in, nil
}
