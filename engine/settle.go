package engine

import "exchange-core-go/book"

// Settle 到期结算：写入结算价（只能一次），此后该合约的市场价
// 即为结算价。由外部结算操作触发，核心只消费。
func (e *Engine) Settle(symbol string, closePrice float64) error {
	in, err := e.reg.Settle(symbol, closePrice)
	if err != nil {
		return err
	}
	if e.store != nil {
		batch := e.store.NewBatch()
		if err := batch.PutInstrument(in); err != nil {
			batch.Discard()
			return err
		}
		if err := batch.Commit(); err != nil {
			return err
		}
	}
	if e.log != nil {
		e.log.WithFields(map[string]interface{}{
			"symbol": symbol, "close_price": closePrice,
		}).Info("instrument settled")
	}
	return nil
}

// Invalidate 合约作废（只能一次）：合约本身和其全部成交都打上
// 作废标记，作废成交不再计入仓位与盈亏。
func (e *Engine) Invalidate(symbol string, reason string) error {
	in, err := e.reg.Invalidate(symbol, reason)
	if err != nil {
		return err
	}

	e.mu.Lock()
	var voided []book.Trade
	for i := range e.trades {
		if e.trades[i].Symbol == symbol && e.trades[i].IsValid {
			e.trades[i].IsValid = false
			e.trades[i].InvalidReason = reason
			voided = append(voided, e.trades[i])
		}
	}
	e.mu.Unlock()

	if e.store != nil {
		batch := e.store.NewBatch()
		if err := batch.PutInstrument(in); err != nil {
			batch.Discard()
			return err
		}
		for _, t := range voided {
			if err := batch.PutTrade(t); err != nil {
				batch.Discard()
				return err
			}
		}
		if err := batch.Commit(); err != nil {
			return err
		}
	}
	if e.log != nil {
		e.log.WithFields(map[string]interface{}{
			"symbol": symbol, "reason": reason, "trades_voided": len(voided),
		}).Info("instrument invalidated")
	}
	return nil
}
