package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/db/dbtest"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

func seedOrder(t *testing.T, db *gorm.DB, status types.OrderStatus, provider types.PaymentProvider, total, paid int64, pushed bool) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:               tool.GenerateUUIDV7(),
		CheckoutID:       tool.GenerateUUIDV7(),
		Currency:         "USD",
		Total:            total,
		AmountPaid:       paid,
		Balance:          max(total-paid, 0),
		Status:           status,
		PaymentProvider:  provider,
		PaymentReference: "DS-" + tool.RandomToken(8),
		Pushed:           pushed,
		Version:          1,
	}
	require.NoError(t, db.Create(o).Error)
	return o
}

func seedReceipt(t *testing.T, db *gorm.DB, o *models.Order, provider types.PaymentProvider, status types.ReceiptStatus, amount int64, paidAt time.Time) {
	t.Helper()
	r := &models.PaymentReceipt{
		ID:        tool.GenerateUUIDV7(),
		OrderID:   o.ID,
		Provider:  provider,
		Reference: "DS-" + tool.RandomToken(10),
		Amount:    amount,
		Currency:  "USD",
		Status:    status,
	}
	if status == types.ReceiptStatusPaid {
		r.PaidAt = &paidAt
	}
	require.NoError(t, db.Create(r).Error)
}

func TestGetStatistic(t *testing.T) {
	db := dbtest.New(t)
	svc := New(db)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	full := seedOrder(t, db, types.OrderStatusProcessing, types.PaymentProviderCard, 10000, 10000, true)
	partly := seedOrder(t, db, types.OrderStatusPartlyPaid, types.PaymentProviderMobileMoney, 20000, 5000, false)
	seedOrder(t, db, types.OrderStatusPending, types.PaymentProviderCash, 3000, 0, false)

	seedReceipt(t, db, full, types.PaymentProviderCard, types.ReceiptStatusPaid, 10000, day1)
	seedReceipt(t, db, partly, types.PaymentProviderMobileMoney, types.ReceiptStatusPaid, 5000, day2)
	seedReceipt(t, db, partly, types.PaymentProviderMobileMoney, types.ReceiptStatusFailed, 15000, day2)

	res, err := svc.GetStatistic(ctx, &StatisticRequest{DataItems: []*StatisticDataItem{
		{ID: StatisticTypeDailySettledAmount},
		{ID: StatisticTypeOrderStatusCount},
		{ID: StatisticTypeOutstandingBalance},
		{ID: StatisticTypeUnsyncedOrderCount},
		{ID: StatisticTypeDailyOrderCount},
	}})
	require.NoError(t, err)

	require.Equal(t, []StatisticResponseDataItem{
		{Date: "2026-03-02", Label: "mobile_money", Value: 5000},
		{Date: "2026-03-01", Label: "card", Value: 10000},
	}, res.DataItems[StatisticTypeDailySettledAmount])

	require.Equal(t, []StatisticResponseDataItem{
		{Label: "PARTLY_PAID", Value: 1},
		{Label: "PENDING", Value: 1},
		{Label: "PROCESSING", Value: 1},
	}, res.DataItems[StatisticTypeOrderStatusCount])

	require.Equal(t, []StatisticResponseDataItem{{Label: "USD", Value: 15000}}, res.DataItems[StatisticTypeOutstandingBalance])
	require.Equal(t, []StatisticResponseDataItem{{Value: 1}}, res.DataItems[StatisticTypeUnsyncedOrderCount])
	require.Len(t, res.DataItems[StatisticTypeDailyOrderCount], 3)
}

func TestGetStatistic_FiltersApplyPerTable(t *testing.T) {
	db := dbtest.New(t)
	svc := New(db)
	ctx := context.Background()
	o := seedOrder(t, db, types.OrderStatusProcessing, types.PaymentProviderCard, 10000, 10000, true)
	seedOrder(t, db, types.OrderStatusProcessing, types.PaymentProviderCash, 4000, 4000, true)
	seedReceipt(t, db, o, types.PaymentProviderCard, types.ReceiptStatusPaid, 10000, time.Now().UTC())

	res, err := svc.GetStatistic(ctx, &StatisticRequest{
		Filters: []*types.CommonFilter{
			{Field: "payment_provider", Operator: types.CommonFilterOperatorEq, Values: []any{"cash"}},
		},
		DataItems: []*StatisticDataItem{{ID: StatisticTypeOrderStatusCount}, {ID: StatisticTypeDailySettledAmount}},
	})
	require.NoError(t, err)
	require.Equal(t, []StatisticResponseDataItem{{Label: "PROCESSING", Value: 1}}, res.DataItems[StatisticTypeOrderStatusCount])
	// payment_provider is an order column, receipts are left unfiltered
	require.Len(t, res.DataItems[StatisticTypeDailySettledAmount], 1)
}

func TestGetStatistic_Invalid(t *testing.T) {
	svc := New(dbtest.New(t))
	ctx := context.Background()

	_, err := svc.GetStatistic(ctx, &StatisticRequest{})
	require.Error(t, err)

	_, err = svc.GetStatistic(ctx, &StatisticRequest{DataItems: []*StatisticDataItem{{ID: "renewal_rate"}}})
	require.ErrorContains(t, err, "invalid data item")

	_, err = svc.GetStatistic(ctx, &StatisticRequest{
		Filters:   []*types.CommonFilter{{Field: "1=1 OR status", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
		DataItems: []*StatisticDataItem{{ID: StatisticTypeOrderStatusCount}},
	})
	require.ErrorContains(t, err, "not allowed")
}

func TestScanOrders(t *testing.T) {
	db := dbtest.New(t)
	svc := New(db)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedOrder(t, db, types.OrderStatusPartlyPaid, types.PaymentProviderMobileMoney, int64(1000*(i+1)), 500, false)
	}
	seedOrder(t, db, types.OrderStatusProcessing, types.PaymentProviderCard, 9999, 9999, true)

	res, err := svc.ScanOrders(ctx, &ScanOrdersRequest{
		Filters:   []*types.CommonFilter{{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"PARTLY_PAID"}}},
		Size:      2,
		From:      1,
		SortBy:    "total",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Total)
	require.Len(t, res.Items, 2)
	require.Equal(t, int64(2000), res.Items[0].Total)
	require.Equal(t, int64(3000), res.Items[1].Total)

	_, err = svc.ScanOrders(ctx, &ScanOrdersRequest{SortBy: "id; drop table orders"})
	require.ErrorContains(t, err, "sort field not allowed")
}
