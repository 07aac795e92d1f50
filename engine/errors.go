package engine

import "errors"

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrPriceOutOfBounds  = errors.New("limit price outside instrument bounds")
	ErrInstrumentExpired = errors.New("instrument expired")
	ErrInstrumentInvalid = errors.New("instrument invalidated")
	ErrOrderNotFound     = errors.New("order not found")

	// ErrInvariantViolated 数量守恒或状态不变量被破坏，属于致命的
	// 内部一致性故障：整个撮合尝试回滚，不提交任何记录。
	ErrInvariantViolated = errors.New("matching invariant violated")
)
