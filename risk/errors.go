package risk

import "errors"

var ErrInsufficientCredit = errors.New("insufficient credit limit for order")
