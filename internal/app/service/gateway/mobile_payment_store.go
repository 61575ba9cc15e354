package gateway

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

var ErrMobilePaymentNotFound = errors.New("mobile payment not found")

// MobilePaymentStore keeps the provider-side record of mobile money pushes.
type MobilePaymentStore struct {
	db *gorm.DB
}

func NewMobilePaymentStore(db *gorm.DB) *MobilePaymentStore {
	return &MobilePaymentStore{db: db}
}

// Ensure creates the PENDING record for reference unless one exists.
func (s *MobilePaymentStore) Ensure(ctx context.Context, reference, phone, method string, amount int64) (*models.MobilePayment, error) {
	if mp, err := s.Get(ctx, reference); err == nil {
		return mp, nil
	} else if !errors.Is(err, ErrMobilePaymentNotFound) {
		return nil, err
	}
	mp := &models.MobilePayment{
		ID:        tool.GenerateUUIDV7(),
		Reference: reference,
		Phone:     phone,
		Method:    method,
		Amount:    amount,
		Status:    types.MobilePaymentStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(mp).Error; err != nil {
		return nil, fmt.Errorf("create mobile payment: %w", err)
	}
	return mp, nil
}

func (s *MobilePaymentStore) Get(ctx context.Context, reference string) (*models.MobilePayment, error) {
	var mp models.MobilePayment
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&mp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMobilePaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mp, nil
}

type MobilePaymentUpdate struct {
	Status            types.MobilePaymentStatus
	RawStatus         string
	ProviderReference string
	PollURL           string
	Hash              string
}

// Advance applies u unless the record already reached a terminal status.
// A PENDING update never overwrites PUSHED. It reports whether the status
// row changed.
func (s *MobilePaymentStore) Advance(ctx context.Context, reference string, u MobilePaymentUpdate) (bool, error) {
	from := []types.MobilePaymentStatus{types.MobilePaymentStatusPending, types.MobilePaymentStatusPushed}
	if u.Status == types.MobilePaymentStatusPending {
		from = []types.MobilePaymentStatus{types.MobilePaymentStatusPending}
	}
	updates := map[string]any{"status": u.Status, "raw_status": u.RawStatus}
	if u.PollURL != "" {
		updates["poll_url"] = u.PollURL
	}
	if u.Hash != "" {
		updates["hash"] = u.Hash
	}

	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MobilePayment{}).
			Where("reference = ? AND status IN ?", reference, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected == 1
		if u.ProviderReference == "" {
			return nil
		}
		// assigned once, whatever the status
		return tx.Model(&models.MobilePayment{}).
			Where("reference = ? AND (provider_reference IS NULL OR provider_reference = '')", reference).
			Update("provider_reference", u.ProviderReference).Error
	})
	if err != nil {
		return false, fmt.Errorf("advance mobile payment %s: %w", reference, err)
	}
	return changed, nil
}
