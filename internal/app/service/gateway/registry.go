package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fatflowers/dropship/pkg/types"
)

type Registry struct {
	mu       sync.RWMutex
	gateways map[types.PaymentProvider]Gateway
}

func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[types.PaymentProvider]Gateway, len(gws))}
	for _, g := range gws {
		r.Register(g)
	}
	return r
}

// Register adds or replaces the gateway for its identifier.
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Identifier()] = g
}

func (r *Registry) Get(p types.PaymentProvider) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, p)
	}
	return g, nil
}

// Providers lists enabled providers in a stable order.
func (r *Registry) Providers() []types.PaymentProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PaymentProvider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
