package risk

import (
	"errors"
	"fmt"

	"exchange-core-go/instrument"
)

// AlertClient 抽象告警发送。
type AlertClient interface {
	Send(typ, msg string)
}

// NotifyingGuard 包装另一个 Guard，信用拒单时上报告警通道，
// 便于运营跟踪信用余量。判定结果原样透传。
type NotifyingGuard struct {
	Inner Guard
	Alert AlertClient
}

func (g *NotifyingGuard) PreOrder(trader string, in instrument.Instrument, isBuy bool, quantity, limitPrice float64) error {
	err := g.Inner.PreOrder(trader, in, isBuy, quantity, limitPrice)
	if err != nil && g.Alert != nil && errors.Is(err, ErrInsufficientCredit) {
		g.Alert.Send("CreditReject",
			fmt.Sprintf("trader=%s symbol=%s qty=%.4f limit=%.2f", trader, in.Symbol, quantity, limitPrice))
	}
	return err
}
