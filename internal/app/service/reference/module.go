package reference

import (
	"go.uber.org/fx"

	"github.com/fatflowers/dropship/pkg/config"
)

func newCodecFromConfig(cfg *config.Config) *Codec {
	return NewCodec(cfg.Checkout.ReferencePrefix)
}

var Module = fx.Options(
	fx.Provide(newCodecFromConfig),
)
