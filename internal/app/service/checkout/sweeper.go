package checkout

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/metrics"
)

// Sweeper periodically expires checkouts left pending past their TTL.
type Sweeper struct {
	store    *Store
	log      *zap.SugaredLogger
	interval time.Duration
	batch    int
}

func NewSweeper(store *Store, log *zap.SugaredLogger, cfg *config.Config) *Sweeper {
	sw := &Sweeper{store: store, log: log, interval: time.Minute, batch: 200}
	if cfg != nil {
		if cfg.Checkout.ExpirySweepInterval > 0 {
			sw.interval = cfg.Checkout.ExpirySweepInterval
		}
		if cfg.Checkout.ExpiryBatchSize > 0 {
			sw.batch = cfg.Checkout.ExpiryBatchSize
		}
	}
	return sw
}

// RunOnce drains stale checkouts batch by batch and returns how many expired.
func (sw *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer metrics.ObserveProcess("sweep", "checkout_expiry", start)

	total := 0
	for {
		n, err := sw.store.ExpireStale(ctx, sw.batch)
		total += n
		metrics.AddCheckoutExpired(n)
		if err != nil {
			return total, err
		}
		if n < sw.batch {
			return total, nil
		}
	}
}

func (sw *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sw.RunOnce(ctx)
			if err != nil {
				sw.log.Errorw("checkout expiry sweep failed", "err", err, "expired", n)
				continue
			}
			if n > 0 {
				sw.log.Infow("checkout expiry sweep", "expired", n)
			}
		}
	}
}

func registerSweeper(lc fx.Lifecycle, sw *Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sw.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
