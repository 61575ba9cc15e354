// Package ordersync propagates settled order state to the external order
// system. Local state is authoritative: a failed push is retried a bounded
// number of times, logged, and healed later by the sweep; it never rolls
// back the order.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/woocommerce"
	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/metrics"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

// ErrSyncFailed is returned once every attempt for an order failed.
var ErrSyncFailed = errors.New("external order sync failed")

type Pusher interface {
	Push(ctx context.Context, externalID *string, state woocommerce.OrderState) (string, error)
}

type Syncer struct {
	db     *gorm.DB
	pusher Pusher
	mapper StatusMapper
	log    *zap.SugaredLogger

	enabled     bool
	workers     int
	maxAttempts int
	retryDelay  time.Duration

	queue    chan string
	inflight sync.Map
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewSyncer(db *gorm.DB, pusher Pusher, cfg *config.Config, log *zap.SugaredLogger) *Syncer {
	sc := cfg.Sync
	s := &Syncer{
		db:          db,
		pusher:      pusher,
		mapper:      NewStatusMapper(sc.StatusMap),
		log:         log,
		enabled:     sc.Enabled && pusher != nil,
		workers:     max(sc.Workers, 1),
		maxAttempts: max(sc.MaxAttempts, 1),
		retryDelay:  sc.RetryDelay,
		queue:       make(chan string, max(sc.QueueSize, 1)),
		now:         func() time.Time { return time.Now().UTC() },
	}
	return s
}

func (s *Syncer) Mapper() StatusMapper { return s.mapper }

// Enqueue schedules an order for sync. It never blocks; a full queue or an
// order already queued is skipped and left to the sweep.
func (s *Syncer) Enqueue(orderID string) {
	if !s.enabled {
		return
	}
	if _, loaded := s.inflight.LoadOrStore(orderID, struct{}{}); loaded {
		return
	}
	select {
	case s.queue <- orderID:
	default:
		s.inflight.Delete(orderID)
		s.log.Warnw("order sync queue full, deferring to sweep", "order_id", orderID)
	}
}

// Resync marks an order unpushed and queues it again. The version bump makes
// a push already in flight leave the flag alone.
func (s *Syncer) Resync(ctx context.Context, orderID string) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"pushed": false, "version": gorm.Expr("version + 1")})
	if res.Error != nil {
		return fmt.Errorf("mark order unpushed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	s.writeLog(ctx, orderID, types.OrderChangeReasonResync, nil)
	s.Enqueue(orderID)
	return nil
}

func (s *Syncer) runWorkers(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.queue:
					// cleared before the push so a mutation during the push
					// can enqueue the order again
					s.inflight.Delete(id)
					if err := s.SyncOrder(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
						s.log.Errorw("order sync failed", "order_id", id, "err", err)
					}
				}
			}
		}()
	}
}

// BuildState assembles the current state of order for the external system.
func (s *Syncer) BuildState(ctx context.Context, o *models.Order) (woocommerce.OrderState, error) {
	state := woocommerce.OrderState{
		Reference:     o.PaymentReference,
		Status:        s.mapper.External(o.Status),
		SetPaid:       s.mapper.SetPaid(o.Status),
		TransactionID: o.PaymentReference,
		Currency:      o.Currency,
		Total:         o.Total,
		AmountPaid:    o.AmountPaid,
		Balance:       o.Balance,
		Provider:      string(o.PaymentProvider),
		PaidAt:        o.PaidAt,
	}
	var rec models.PaymentReceipt
	err := s.db.WithContext(ctx).Where("order_id = ? AND status = ?", o.ID, types.ReceiptStatusPaid).
		Order("paid_at DESC").First(&rec).Error
	switch {
	case err == nil:
		state.Provider = string(rec.Provider)
		if rec.ProviderReference != nil && *rec.ProviderReference != "" {
			state.ProviderReference = *rec.ProviderReference
			state.TransactionID = *rec.ProviderReference
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return state, err
	}
	if o.ExternalOrderID == nil {
		var c models.PendingCheckout
		if err := s.db.WithContext(ctx).Where("id = ?", o.CheckoutID).First(&c).Error; err == nil {
			state.Checkout = c.Data()
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return state, err
		}
	}
	return state, nil
}

// SyncOrder pushes the order, retrying with a fixed delay. Every attempt
// reloads the order and re-sends its current state.
func (s *Syncer) SyncOrder(ctx context.Context, orderID string) error {
	log := logctx.FromCtx(ctx, s.log).With("order_id", orderID)
	start := time.Now()
	defer metrics.ObserveProcess("sync", "order", start)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}
		done, err := s.pushOnce(ctx, orderID)
		if err == nil {
			if done {
				metrics.IncOrderSync("ok")
			}
			return nil
		}
		lastErr = err
		log.Warnw("order sync attempt failed", "attempt", attempt, "err", err)
		if errors.Is(err, woocommerce.ErrRejected) || errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
	}

	metrics.IncOrderSync("exhausted")
	log.Errorw("order sync exhausted", "attempts", s.maxAttempts, "err", lastErr)
	s.writeLog(ctx, orderID, types.OrderChangeReasonSyncFailed, datatypes.JSONMap{"error": fmt.Sprint(lastErr)})
	return fmt.Errorf("%w: %v", ErrSyncFailed, lastErr)
}

// pushOnce reports done=false when the order changed during the push; the
// change enqueued it again so pushed stays false here.
func (s *Syncer) pushOnce(ctx context.Context, orderID string) (bool, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		return false, err
	}
	state, err := s.BuildState(ctx, &o)
	if err != nil {
		return false, err
	}
	externalID, err := s.pusher.Push(ctx, o.ExternalOrderID, state)
	if err != nil {
		return false, err
	}

	now := s.now()
	if o.ExternalOrderID == nil && externalID != "" {
		if err := s.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND external_order_id IS NULL", o.ID).
			Update("external_order_id", externalID).Error; err != nil {
			return false, fmt.Errorf("save external order id: %w", err)
		}
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND version = ?", o.ID, o.Version).
		Updates(map[string]any{"pushed": true, "pushed_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("mark pushed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logctx.FromCtx(ctx, s.log).Infow("order changed during sync, leaving unpushed", "order_id", o.ID)
		return false, nil
	}
	s.writeLog(ctx, o.ID, types.OrderChangeReasonSynced, datatypes.JSONMap{
		"external_order_id": externalID, "status": state.Status, "version": o.Version,
	})
	return true, nil
}

func (s *Syncer) writeLog(ctx context.Context, orderID string, reason types.OrderChangeReason, extra datatypes.JSONMap) {
	entry := &models.OrderLog{
		ID:      tool.GenerateUUIDV7(),
		OrderID: orderID,
		Reason:  reason,
		Extra:   extra,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("write order log failed", "order_id", orderID, "reason", reason, "err", err)
	}
}
