package ordersync

import (
	"go.uber.org/fx"

	"github.com/fatflowers/dropship/internal/platform/woocommerce"
	"github.com/fatflowers/dropship/pkg/config"
)

func newPusher(cfg *config.Config) Pusher {
	if !cfg.Sync.Enabled {
		return nil
	}
	return woocommerce.NewClient(cfg.Sync)
}

var Module = fx.Options(
	fx.Provide(newPusher, NewSyncer),
	fx.Invoke(registerSyncer),
)
