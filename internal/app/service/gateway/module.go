package gateway

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
)

// NewRegistryFromConfig registers every enabled provider.
func NewRegistryFromConfig(cfg *config.Config, store *MobilePaymentStore, log *zap.SugaredLogger) *Registry {
	r := NewRegistry()
	g := cfg.Gateways
	if g.Cash.Enabled {
		r.Register(NewCash(g.Cash.Instructions))
	}
	if g.MobileMoney.Enabled {
		r.Register(NewMobileMoney(g.MobileMoney, store, log))
	}
	if g.Redirect.Enabled {
		r.Register(NewRedirect(g.Redirect, log))
	}
	if g.Card.Enabled {
		r.Register(NewCard(g.Card, log))
	}
	log.Infow("payment gateways registered", "providers", r.Providers())
	return r
}

var Module = fx.Options(
	fx.Provide(NewMobilePaymentStore, NewRegistryFromConfig),
)
