package agents

import "errors"

// Trade rejections. A rejected trade leaves every balance, supply and
// position exactly as it was.
var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNoPosition         = errors.New("no position held")
	ErrInsufficientSupply = errors.New("insufficient supply")
	ErrProductUnavailable = errors.New("product unavailable")
)
