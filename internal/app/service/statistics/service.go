package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/types"
)

type StatisticType string

const (
	// Orders created per day, one row per status
	StatisticTypeDailyOrderCount StatisticType = "daily_order_count"
	// Paid receipts per day, one row per provider, value in minor units
	StatisticTypeDailySettledAmount StatisticType = "daily_settled_amount"
	StatisticTypeOrderStatusCount   StatisticType = "order_status_count"
	// Sum of balances still owed on partly paid orders
	StatisticTypeOutstandingBalance StatisticType = "outstanding_balance"
	// Orders with money taken that the external system has not seen yet
	StatisticTypeUnsyncedOrderCount StatisticType = "unsynced_order_count"
)

var orderFields = []string{"status", "payment_provider", "currency", "created_at", "user_id"}

var receiptFields = []string{"provider", "currency", "paid_at"}

// validFilters lists the columns each statistic can be filtered by.
var validFilters = map[StatisticType][]string{
	StatisticTypeDailyOrderCount:    orderFields,
	StatisticTypeDailySettledAmount: receiptFields,
	StatisticTypeOrderStatusCount:   orderFields,
	StatisticTypeOutstandingBalance: orderFields,
	StatisticTypeUnsyncedOrderCount: orderFields,
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

// GetFilters keeps the filters that apply to statisticType.
func (r *StatisticRequest) GetFilters(statisticType StatisticType) types.FiltersAnd {
	if r == nil {
		return nil
	}
	allowed := validFilters[statisticType]
	return lo.Filter(r.Filters, func(f *types.CommonFilter, _ int) bool {
		return lo.Contains(allowed, f.Field)
	})
}

func (r *StatisticRequest) Validate() error {
	if len(r.DataItems) == 0 {
		return fmt.Errorf("no data items requested")
	}
	for _, it := range r.DataItems {
		if _, ok := validFilters[it.ID]; !ok {
			return fmt.Errorf("invalid data item id: %s", it.ID)
		}
	}
	all := lo.Uniq(append(append([]string{}, orderFields...), receiptFields...))
	for _, f := range r.Filters {
		if err := f.Validate(all); err != nil {
			return err
		}
	}
	return nil
}

type StatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

type ScanOrdersRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanOrdersResponse struct {
	Items []*models.Order `json:"items"`
	Total int64           `json:"total"`
}

var sortableOrderFields = []string{"created_at", "updated_at", "total", "balance", "amount_paid", "status"}

// Service answers the admin reporting queries over orders and receipts.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// ScanOrders implements the paginated admin order listing.
func (s *Service) ScanOrders(ctx context.Context, req *ScanOrdersRequest) (*ScanOrdersResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 || req.Size > 200 {
		req.Size = 20
	}
	if req.From < 0 {
		req.From = 0
	}
	for _, f := range req.Filters {
		if err := f.Validate(orderFields); err != nil {
			return nil, err
		}
	}
	if req.SortBy != "" && !lo.Contains(sortableOrderFields, req.SortBy) {
		return nil, fmt.Errorf("sort field not allowed: %s", req.SortBy)
	}

	tx := s.db.WithContext(ctx).Model(&models.Order{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := lo.Ternary(req.SortBy != "", req.SortBy, "created_at")
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.Order
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return &ScanOrdersResponse{Items: rows, Total: total}, nil
}

// dayExpr renders col as YYYY-MM-DD for the connected dialect.
func (s *Service) dayExpr(col string) string {
	switch s.db.Dialector.Name() {
	case "postgres":
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", col)
	case "mysql":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col)
	default:
		return fmt.Sprintf("substr(%s, 1, 10)", col)
	}
}

func (s *Service) getDailyOrderCount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dayExpr("created_at")
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Select(day + " as date, status as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{req.GetFilters(StatisticTypeDailyOrderCount)}}).
		Group(day).Group("status").
		Order("date DESC").Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailySettledAmount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dayExpr("paid_at")
	q := s.db.WithContext(ctx).Model(&models.PaymentReceipt{}).
		Select(day+" as date, provider as label, sum(amount) as value").
		Where("status = ?", types.ReceiptStatusPaid).
		Where(clause.Where{Exprs: []clause.Expression{req.GetFilters(StatisticTypeDailySettledAmount)}}).
		Group(day).Group("provider").
		Order("date DESC").Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getOrderStatusCount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("status as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{req.GetFilters(StatisticTypeOrderStatusCount)}}).
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getOutstandingBalance(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("currency as label, COALESCE(sum(balance), 0) as value").
		Where("status = ?", types.OrderStatusPartlyPaid).
		Where(clause.Where{Exprs: []clause.Expression{req.GetFilters(StatisticTypeOutstandingBalance)}}).
		Group("currency").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getUnsyncedOrderCount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("pushed = ? AND amount_paid > 0", false).
		Where(clause.Where{Exprs: []clause.Expression{req.GetFilters(StatisticTypeUnsyncedOrderCount)}}).
		Count(&n).Error
	if err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Value: n}}, nil
}

func (s *Service) getStatistic(ctx context.Context, req *StatisticRequest, item *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeDailyOrderCount:
		return s.getDailyOrderCount(ctx, req)
	case StatisticTypeDailySettledAmount:
		return s.getDailySettledAmount(ctx, req)
	case StatisticTypeOrderStatusCount:
		return s.getOrderStatusCount(ctx, req)
	case StatisticTypeOutstandingBalance:
		return s.getOutstandingBalance(ctx, req)
	case StatisticTypeUnsyncedOrderCount:
		return s.getUnsyncedOrderCount(ctx, req)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", item.ID)
	}
}

// GetStatistic computes every requested data item concurrently.
func (s *Service) GetStatistic(ctx context.Context, req *StatisticRequest) (*StatisticResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(req.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(req.DataItems))

	for _, item := range req.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, req, di)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}
	wg.Wait()
	close(errChan)
	close(resChan)

	if err, ok := <-errChan; ok {
		return nil, err
	}
	results := make(map[StatisticType][]StatisticResponseDataItem, len(req.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
