// Package store 基于 pebble 的事务性持久层。一次撮合尝试的全部
// 订单变更和成交记录打进同一个 batch，一次性原子提交；崩溃重启后
// 从这里恢复订单簿与成交历史。
package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"exchange-core-go/book"
	"exchange-core-go/instrument"
)

const (
	orderPrefix      = "order/"
	tradePrefix      = "trade/"
	instrumentPrefix = "instrument/"
)

type Store struct {
	db *pebble.DB
}

// Open 打开（或新建）磁盘库。
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenMem 内存库，测试用。
func OpenMem() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func orderKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", orderPrefix, id))
}

func tradeKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", tradePrefix, id))
}

func instrumentKey(symbol string) []byte {
	return []byte(instrumentPrefix + symbol)
}

// Batch 一次撮合尝试的工作单元。Commit 前对读者不可见。
type Batch struct {
	b *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

func (b *Batch) PutOrder(o book.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %d: %w", o.ID, err)
	}
	return b.b.Set(orderKey(o.ID), raw, nil)
}

func (b *Batch) PutTrade(t book.Trade) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trade %d: %w", t.ID, err)
	}
	return b.b.Set(tradeKey(t.ID), raw, nil)
}

func (b *Batch) PutInstrument(in instrument.Instrument) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode instrument %s: %w", in.Symbol, err)
	}
	return b.b.Set(instrumentKey(in.Symbol), raw, nil)
}

// Commit 同步落盘，要么全部生效要么全部丢弃。
func (b *Batch) Commit() error {
	defer b.b.Close()
	if err := b.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Discard 放弃未提交的变更（撮合尝试中途失败时调用）。
func (b *Batch) Discard() {
	_ = b.b.Close()
}

func (s *Store) scan(prefix string, visit func(val []byte) error) error {
	upper := append([]byte(prefix[:len(prefix)-1]), prefix[len(prefix)-1]+1)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", prefix, err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := visit(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadOrders 启动恢复：按 ID 升序读回全部订单。
func (s *Store) LoadOrders() ([]book.Order, error) {
	var res []book.Order
	err := s.scan(orderPrefix, func(val []byte) error {
		var o book.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		res = append(res, o)
		return nil
	})
	return res, err
}

// LoadTrades 启动恢复：按 ID 升序读回全部成交。
func (s *Store) LoadTrades() ([]book.Trade, error) {
	var res []book.Trade
	err := s.scan(tradePrefix, func(val []byte) error {
		var t book.Trade
		if err := json.Unmarshal(val, &t); err != nil {
			return fmt.Errorf("decode trade: %w", err)
		}
		res = append(res, t)
		return nil
	})
	return res, err
}

// LoadInstruments 读回结算后的合约状态，与配置中的静态定义合并。
func (s *Store) LoadInstruments() ([]instrument.Instrument, error) {
	var res []instrument.Instrument
	err := s.scan(instrumentPrefix, func(val []byte) error {
		var in instrument.Instrument
		if err := json.Unmarshal(val, &in); err != nil {
			return fmt.Errorf("decode instrument: %w", err)
		}
		res = append(res, in)
		return nil
	})
	return res, err
}
