package domain

import (
	"fmt"
	"math/rand"
	"time"
)

// NewOrderNo builds a merchant order number in the format the gateway
// expects: prefix, 13-digit millisecond timestamp, 6-digit random suffix.
func NewOrderNo(prefix string) string {
	return fmt.Sprintf("%s%d%06d", prefix, time.Now().UnixMilli(), rand.Intn(1_000_000))
}
