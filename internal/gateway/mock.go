package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
)

// MockGateway simulates the external payment platform for local runs and
// tests. It introduces a short random delay and fails a configurable
// fraction of calls.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
	// Delay caps the simulated network latency. Zero means no delay.
	Delay time.Duration
}

// NewMockGateway returns a mock with a 10% failure rate and no delay.
func NewMockGateway() *MockGateway {
	return &MockGateway{FailureRate: 0.1}
}

// CreateOrder simulates a unified-order call. It honors context
// cancellation during the simulated delay.
func (g *MockGateway) CreateOrder(ctx context.Context, req UnifiedOrderRequest) (*UnifiedOrderResult, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(g.Delay)))):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return nil, fmt.Errorf("%w: gateway temporarily unavailable", models.ErrGatewayUnavailable)
	}

	return &UnifiedOrderResult{
		PayOrderID: fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000)),
		OrderNo:    req.OrderNo,
		OrderState: domain.GatewayStatePaying,
		PayData:    "https://mock.gateway.example/pay/" + req.OrderNo,
	}, nil
}
