package ordersync

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/config"
)

// SweepOnce enqueues paid orders whose last push did not land.
func (s *Syncer) SweepOnce(ctx context.Context, limit int) (int, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("pushed = ? AND amount_paid > ?", false, 0).
		Order("updated_at").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.Enqueue(id)
	}
	return len(ids), nil
}

func (s *Syncer) runSweep(ctx context.Context, interval time.Duration, batch int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.SweepOnce(ctx, batch)
				if err != nil {
					s.log.Errorw("order resync sweep failed", "err", err)
					continue
				}
				if n > 0 {
					s.log.Infow("order resync sweep", "enqueued", n)
				}
			}
		}
	}()
}

func registerSyncer(lc fx.Lifecycle, s *Syncer, cfg *config.Config) {
	if !s.enabled {
		s.log.Infow("order sync disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.runWorkers(ctx)
			if cfg.Sync.SweepInterval > 0 {
				s.runSweep(ctx, cfg.Sync.SweepInterval, max(cfg.Sync.SweepBatchSize, 1))
			}
			s.log.Infow("order sync started", "workers", s.workers)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				s.wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
