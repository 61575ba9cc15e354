package reconciliation

import (
	"go.uber.org/fx"

	"github.com/fatflowers/dropship/internal/app/service/ordersync"
)

func newSyncQueue(s *ordersync.Syncer) SyncQueue { return s }

var Module = fx.Options(
	fx.Provide(newSyncQueue, NewEngine, NewPoller),
	fx.Invoke(registerPoller),
)
