package ordersync

import (
	"strings"

	"github.com/fatflowers/dropship/pkg/types"
)

const defaultExternalStatus = "pending"

var defaultStatusMap = map[types.OrderStatus]string{
	types.OrderStatusPending:    "pending",
	types.OrderStatusProcessing: "processing",
	// WooCommerce has no partial-payment state
	types.OrderStatusPartlyPaid: "on-hold",
	types.OrderStatusCompleted:  "completed",
	types.OrderStatusCancelled:  "cancelled",
	types.OrderStatusRefunded:   "refunded",
	types.OrderStatusFailed:     "failed",
}

// StatusMapper translates internal order statuses to the external order
// system's vocabulary.
type StatusMapper struct {
	m map[types.OrderStatus]string
}

// NewStatusMapper starts from the default table and applies overrides whose
// keys are matched case-insensitively. Unknown keys are ignored.
func NewStatusMapper(overrides map[string]string) StatusMapper {
	m := make(map[types.OrderStatus]string, len(defaultStatusMap))
	for k, v := range defaultStatusMap {
		m[k] = v
	}
	for k, v := range overrides {
		st, err := types.ParseOrderStatus(k)
		if err != nil || strings.TrimSpace(v) == "" {
			continue
		}
		m[st] = strings.TrimSpace(v)
	}
	return StatusMapper{m: m}
}

func (sm StatusMapper) External(st types.OrderStatus) string {
	if v, ok := sm.m[st]; ok {
		return v
	}
	return defaultExternalStatus
}

// SetPaid is true only for the fully-paid status.
func (sm StatusMapper) SetPaid(st types.OrderStatus) bool {
	return st == types.OrderStatusProcessing
}
