package gateway

import "context"

// UnifiedOrderRequest is the order-creation call made against the external
// payment platform. Amount is in minor units.
type UnifiedOrderRequest struct {
	OrderNo  string
	WayCode  string
	Amount   int64
	Currency string
	Subject  string
	Body     string
	ClientIP string
}

// UnifiedOrderResult is the accepted-order response. OrderState carries the
// gateway's own state enum (see domain.GatewayState*).
type UnifiedOrderResult struct {
	PayOrderID string
	OrderNo    string
	OrderState int
	PayData    string
}

// Gateway creates collection orders on the external payment platform.
// Implementations must treat timeouts as hard failures so the caller can run
// its compensating unfreeze; a stranded frozen balance is worse than a
// spurious retry.
type Gateway interface {
	CreateOrder(ctx context.Context, req UnifiedOrderRequest) (*UnifiedOrderResult, error)
}
