package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/metrics"
	"github.com/fatflowers/dropship/pkg/types"
)

// Poller asks providers about receipts still pending after min age, for
// providers whose webhooks may never arrive. Receipts are visited least
// recently polled first so a batch of stuck ones cannot hide newer ones,
// and receipts older than max age are left alone.
type Poller struct {
	engine   *Engine
	log      *zap.SugaredLogger
	interval time.Duration
	batch    int
	minAge   time.Duration
	maxAge   time.Duration
}

func NewPoller(engine *Engine, log *zap.SugaredLogger, cfg *config.Config) *Poller {
	p := &Poller{engine: engine, log: log, interval: time.Minute, batch: 50, minAge: 2 * time.Minute, maxAge: 24 * time.Hour}
	if cfg.Checkout.PollInterval > 0 {
		p.interval = cfg.Checkout.PollInterval
	}
	if cfg.Checkout.PollBatchSize > 0 {
		p.batch = cfg.Checkout.PollBatchSize
	}
	if cfg.Checkout.PollMinAge > 0 {
		p.minAge = cfg.Checkout.PollMinAge
	}
	if cfg.Checkout.PollMaxAge > 0 {
		p.maxAge = cfg.Checkout.PollMaxAge
	}
	return p
}

// RunOnce polls one batch and returns how many receipts left pending.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer metrics.ObserveProcess("poll", "pending_receipts", start)

	db := p.engine.db.WithContext(ctx)
	now := p.engine.now()
	var receipts []models.PaymentReceipt
	if err := db.
		Where("status = ? AND provider <> ? AND created_at <= ? AND created_at > ?",
			types.ReceiptStatusPending, types.PaymentProviderCash, now.Add(-p.minAge), now.Add(-p.maxAge)).
		// never polled first; NULL ordering differs between drivers
		Order("CASE WHEN last_polled_at IS NULL THEN 0 ELSE 1 END").
		Order("last_polled_at").Order("created_at").
		Limit(p.batch).Find(&receipts).Error; err != nil {
		return 0, err
	}
	resolved := 0
	for i := range receipts {
		rec := &receipts[i]
		if err := db.Model(&models.PaymentReceipt{}).Where("id = ?", rec.ID).
			UpdateColumn("last_polled_at", now).Error; err != nil {
			return resolved, fmt.Errorf("stamp receipt poll: %w", err)
		}
		out, err := p.engine.PollReceipt(ctx, rec)
		switch {
		case errors.Is(err, gateway.ErrUnsupported), errors.Is(err, gateway.ErrNotConfigured):
			continue
		case err != nil:
			p.log.Warnw("poll receipt failed", "reference", rec.Reference, "provider", rec.Provider, "err", err)
			continue
		}
		if out.Result != ResultPending {
			resolved++
		}
	}
	return resolved, nil
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.RunOnce(ctx)
			if err != nil {
				p.log.Errorw("pending receipt poll failed", "err", err)
				continue
			}
			if n > 0 {
				p.log.Infow("pending receipt poll", "resolved", n)
			}
		}
	}
}

func registerPoller(lc fx.Lifecycle, p *Poller) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				p.run(ctx)
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
