package core

import "errors"

var (
	// ErrInvalidConfig marks configuration faults. They are fatal at startup.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrAuth indicates missing or rejected API credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrInsufficientBalance indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the order was rejected by exchange.
	ErrOrderRejected = errors.New("order rejected")
	// ErrRateLimited indicates the exchange throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient covers network failures and exchange side 5xx responses.
	ErrTransient = errors.New("transient exchange error")
	// ErrDepthIncomplete indicates a depth snapshot without two levels per side.
	ErrDepthIncomplete = errors.New("depth incomplete")
	ErrBadPrice        = errors.New("bad price")
	ErrUnknownAsset    = errors.New("unknown asset")
	ErrTradeLimit      = errors.New("trade limit reached")
	// ErrCircuitOpen is returned by guarded calls while their circuit is open.
	ErrCircuitOpen = errors.New("circuit open")
)
