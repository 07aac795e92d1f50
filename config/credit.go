package config

import "sync"

// CreditStore 交易员信用额度的运行时视图，实现 risk.CreditSource。
// 额度可由配置热更新整体替换；未知交易员额度为 0。
type CreditStore struct {
	mu     sync.RWMutex
	limits map[string]float64
}

func NewCreditStore(traders []TraderConfig) *CreditStore {
	s := &CreditStore{}
	s.Replace(traders)
	return s
}

func (s *CreditStore) CreditLimit(trader string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limits[trader]
}

// Replace 整体替换额度表。
func (s *CreditStore) Replace(traders []TraderConfig) {
	limits := make(map[string]float64, len(traders))
	for _, t := range traders {
		limits[t.Name] = t.CreditLimit
	}
	s.mu.Lock()
	s.limits = limits
	s.mu.Unlock()
}

// Known 是否配置过该交易员。
func (s *CreditStore) Known(trader string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.limits[trader]
	return ok
}
