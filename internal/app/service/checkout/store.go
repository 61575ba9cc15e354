// Package checkout persists pending checkouts and owns their status
// transitions. Every transition is a single conditional UPDATE so that
// concurrent webhook, poller and sweeper paths never need a shared lock.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/app/service/reference"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/metrics"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

var (
	ErrNotFound          = errors.New("checkout not found")
	ErrInvalidTransition = errors.New("invalid checkout status transition")
	ErrInvalidParams     = errors.New("invalid checkout params")
)

type CreateParams struct {
	UserID     *string
	Provider   types.PaymentProvider
	Currency   string
	Total      int64
	Amount     int64
	Percentage int
	Data       *models.CheckoutData
	TTL        time.Duration
}

func (p CreateParams) validate() error {
	switch {
	case !p.Provider.Valid():
		return fmt.Errorf("%w: provider %q", ErrInvalidParams, p.Provider)
	case p.Percentage < 1 || p.Percentage > 100:
		return fmt.Errorf("%w: percentage %d", ErrInvalidParams, p.Percentage)
	case p.Total <= 0 || p.Amount <= 0 || p.Amount > p.Total:
		return fmt.Errorf("%w: amount %d of total %d", ErrInvalidParams, p.Amount, p.Total)
	case p.TTL <= 0:
		return fmt.Errorf("%w: ttl %s", ErrInvalidParams, p.TTL)
	}
	return nil
}

type Store struct {
	db    *gorm.DB
	codec *reference.Codec
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewStore(db *gorm.DB, codec *reference.Codec, log *zap.SugaredLogger) *Store {
	return &Store{db: db, codec: codec, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	cp := *s
	cp.db = tx
	return &cp
}

func (s *Store) Now() time.Time { return s.now() }

func (s *Store) Create(ctx context.Context, p CreateParams) (*models.PendingCheckout, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	id := tool.GenerateUUIDV7()
	ref, err := s.codec.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("generate reference: %w", err)
	}
	data := p.Data
	if data == nil {
		data = &models.CheckoutData{}
	}
	now := s.now()
	c := &models.PendingCheckout{
		ID:                id,
		Reference:         ref,
		UserID:            p.UserID,
		Provider:          p.Provider,
		Currency:          p.Currency,
		Total:             p.Total,
		Amount:            p.Amount,
		PaymentPercentage: p.Percentage,
		CheckoutData:      datatypes.NewJSONType(data),
		Status:            types.CheckoutStatusPending,
		ExpiresAt:         now.Add(p.TTL),
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create pending checkout: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("checkout created", "reference", ref, "provider", p.Provider,
		"amount", p.Amount, "percentage", p.Percentage, "expires_at", c.ExpiresAt)
	return c, nil
}

func (s *Store) first(ctx context.Context, query string, args ...any) (*models.PendingCheckout, error) {
	var c models.PendingCheckout
	err := s.db.WithContext(ctx).Where(query, args...).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.PendingCheckout, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Store) FindByReference(ctx context.Context, ref string) (*models.PendingCheckout, error) {
	return s.first(ctx, "reference = ?", ref)
}

// FindActiveByReference returns the checkout only while it is pending and
// not past expires_at. Anything else reports ErrNotFound.
func (s *Store) FindActiveByReference(ctx context.Context, ref string) (*models.PendingCheckout, error) {
	return s.first(ctx, "reference = ? AND status = ? AND expires_at > ?", ref, types.CheckoutStatusPending, s.now())
}

// Claim moves c from pending to processing. It reports true only for the one
// caller whose UPDATE affected the row; losers must not create an order.
func (s *Store) Claim(ctx context.Context, c *models.PendingCheckout) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PendingCheckout{}).
		Where("id = ? AND status = ? AND expires_at > ?", c.ID, types.CheckoutStatusPending, s.now()).
		Updates(map[string]any{"status": types.CheckoutStatusProcessing, "updated_at": s.now()})
	if res.Error != nil {
		return false, fmt.Errorf("claim checkout: %w", res.Error)
	}
	won := res.RowsAffected == 1
	if won {
		c.Status = types.CheckoutStatusProcessing
		metrics.IncCheckoutClaim("won")
	} else {
		metrics.IncCheckoutClaim("lost")
	}
	logctx.FromCtx(ctx, s.log).Infow("checkout claim", "reference", c.Reference, "won", won)
	return won, nil
}

func (s *Store) MarkPaid(ctx context.Context, id string) error {
	return s.transition(ctx, id, types.CheckoutStatusPaid)
}

func (s *Store) MarkExpired(ctx context.Context, id string) error {
	return s.transition(ctx, id, types.CheckoutStatusExpired)
}

func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.transition(ctx, id, types.CheckoutStatusCancelled)
}

// transition applies a terminal status. Repeating a transition that already
// happened is a no-op; any other mismatch is ErrInvalidTransition.
func (s *Store) transition(ctx context.Context, id string, to types.CheckoutStatus) error {
	res := s.db.WithContext(ctx).Model(&models.PendingCheckout{}).
		Where("id = ? AND status IN ?", id, types.SourcesOf(to)).
		Updates(map[string]any{"status": to, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("mark checkout %s: %w", to, res.Error)
	}
	if res.RowsAffected == 1 {
		logctx.FromCtx(ctx, s.log).Infow("checkout transition", "checkout_id", id, "to", to)
		return nil
	}
	cur, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
}

// ExpireStale expires up to limit pending checkouts whose expires_at passed.
func (s *Store) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.now()
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.PendingCheckout{}).
		Where("status = ? AND expires_at <= ?", types.CheckoutStatusPending, now).
		Order("expires_at").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list stale checkouts: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	// status is re-checked so a checkout claimed since the SELECT is left alone.
	res := s.db.WithContext(ctx).Model(&models.PendingCheckout{}).
		Where("id IN ? AND status = ? AND expires_at <= ?", ids, types.CheckoutStatusPending, now).
		Updates(map[string]any{"status": types.CheckoutStatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expire checkouts: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// CancelPending cancels a checkout that nobody claimed yet. A claimed
// checkout belongs to its payment flow and is left alone; ok is false then.
func (s *Store) CancelPending(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PendingCheckout{}).
		Where("id = ? AND status = ?", id, types.CheckoutStatusPending).
		Updates(map[string]any{"status": types.CheckoutStatusCancelled, "updated_at": s.now()})
	if res.Error != nil {
		return false, fmt.Errorf("cancel checkout: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
