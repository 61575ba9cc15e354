package db_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/db"
	"github.com/fatflowers/dropship/internal/platform/db/dbtest"
	"github.com/fatflowers/dropship/pkg/types"
)

func TestMigrate_Idempotent(t *testing.T) {
	gdb := dbtest.New(t)
	require.NoError(t, db.Migrate(gdb))
}

func TestProviderReference_UniqueWhenPresent(t *testing.T) {
	gdb := dbtest.New(t)
	ref := "PN-123"

	require.NoError(t, gdb.Create(&models.MobilePayment{ID: "1", Reference: "A", Status: types.MobilePaymentStatusPending}).Error)
	require.NoError(t, gdb.Create(&models.MobilePayment{ID: "2", Reference: "B", Status: types.MobilePaymentStatusPending}).Error)
	require.NoError(t, gdb.Create(&models.MobilePayment{ID: "3", Reference: "C", ProviderReference: &ref, Status: types.MobilePaymentStatusPushed}).Error)

	dup := ref
	err := gdb.Create(&models.MobilePayment{ID: "4", Reference: "D", ProviderReference: &dup, Status: types.MobilePaymentStatusPushed}).Error
	require.Error(t, err)
}
