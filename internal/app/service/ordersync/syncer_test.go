package ordersync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/db/dbtest"
	"github.com/fatflowers/dropship/internal/platform/woocommerce"
	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

type fakePusher struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    []woocommerce.OrderState
	ids      []*string
	onPush   func()
}

func (f *fakePusher) Push(_ context.Context, externalID *string, state woocommerce.OrderState) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, state)
	f.ids = append(f.ids, externalID)
	fail := len(f.calls) <= f.failures
	hook := f.onPush
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("connection reset")
	}
	return "9001", nil
}

func (f *fakePusher) Calls() []woocommerce.OrderState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]woocommerce.OrderState(nil), f.calls...)
}

func newTestSyncer(t *testing.T, p Pusher, attempts int) (*Syncer, *gorm.DB) {
	t.Helper()
	gdb := dbtest.New(t)
	cfg := &config.Config{Sync: config.SyncConfig{
		Enabled: true, Workers: 1, QueueSize: 8, MaxAttempts: attempts, RetryDelay: time.Millisecond,
		StatusMap: map[string]string{"partly_paid": "on-hold"},
	}}
	return NewSyncer(gdb, p, cfg, zap.NewNop().Sugar()), gdb
}

func seedOrder(t *testing.T, gdb *gorm.DB, status types.OrderStatus, paid int64) *models.Order {
	t.Helper()
	o := &models.Order{
		ID: tool.GenerateUUIDV7(), CheckoutID: tool.GenerateUUIDV7(), Currency: "USD",
		Total: 10000, AmountPaid: paid, Balance: 10000 - paid, Status: status,
		PaymentProvider: types.PaymentProviderCard, PaymentReference: "DS-x", Version: 3,
	}
	require.NoError(t, gdb.Create(o).Error)
	rec := &models.PaymentReceipt{
		ID: tool.GenerateUUIDV7(), OrderID: o.ID, Provider: types.PaymentProviderCard, Reference: "DS-x-" + o.ID,
		ProviderReference: lo.ToPtr("ch_1"), Amount: paid, Currency: "USD", Status: types.ReceiptStatusPaid,
		PaidAt: lo.ToPtr(time.Now().UTC()),
	}
	require.NoError(t, gdb.Create(rec).Error)
	return o
}

func loadOrder(t *testing.T, gdb *gorm.DB, id string) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, gdb.Where("id = ?", id).First(&o).Error)
	return o
}

func TestStatusMapper(t *testing.T) {
	m := NewStatusMapper(nil)
	require.Equal(t, "processing", m.External(types.OrderStatusProcessing))
	require.Equal(t, "on-hold", m.External(types.OrderStatusPartlyPaid))
	require.Equal(t, "cancelled", m.External(types.OrderStatusCancelled))
	require.Equal(t, "refunded", m.External(types.OrderStatusRefunded))
	require.Equal(t, "failed", m.External(types.OrderStatusFailed))
	require.Equal(t, "pending", m.External(types.OrderStatusPending))
	require.Equal(t, "pending", m.External("BOGUS"))
	require.True(t, m.SetPaid(types.OrderStatusProcessing))
	require.False(t, m.SetPaid(types.OrderStatusPartlyPaid))

	custom := NewStatusMapper(map[string]string{"partly_paid": "partially-paid", "nope": "x", "FAILED": " "})
	require.Equal(t, "partially-paid", custom.External(types.OrderStatusPartlyPaid))
	require.Equal(t, "failed", custom.External(types.OrderStatusFailed))
}

func TestSyncOrder_Success(t *testing.T) {
	p := &fakePusher{}
	s, gdb := newTestSyncer(t, p, 3)
	o := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)

	require.NoError(t, s.SyncOrder(context.Background(), o.ID))

	calls := p.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "processing", calls[0].Status)
	require.True(t, calls[0].SetPaid)
	require.Equal(t, "ch_1", calls[0].TransactionID)

	got := loadOrder(t, gdb, o.ID)
	require.True(t, got.Pushed)
	require.Equal(t, "9001", *got.ExternalOrderID)

	var logs []models.OrderLog
	require.NoError(t, gdb.Where("order_id = ? AND reason = ?", o.ID, types.OrderChangeReasonSynced).Find(&logs).Error)
	require.Len(t, logs, 1)
}

func TestSyncOrder_RetriesThenSucceeds(t *testing.T) {
	p := &fakePusher{failures: 2}
	s, gdb := newTestSyncer(t, p, 3)
	o := seedOrder(t, gdb, types.OrderStatusPartlyPaid, 7500)

	require.NoError(t, s.SyncOrder(context.Background(), o.ID))
	calls := p.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		require.Equal(t, "on-hold", c.Status, "every retry re-sends the same state")
	}
	require.True(t, loadOrder(t, gdb, o.ID).Pushed)
}

func TestSyncOrder_ExhaustionKeepsLocalState(t *testing.T) {
	p := &fakePusher{failures: 100}
	s, gdb := newTestSyncer(t, p, 3)
	o := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)

	err := s.SyncOrder(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrSyncFailed)
	require.Len(t, p.Calls(), 3)

	got := loadOrder(t, gdb, o.ID)
	require.False(t, got.Pushed)
	require.Equal(t, types.OrderStatusProcessing, got.Status)
	require.Equal(t, int64(10000), got.AmountPaid)

	var n int64
	require.NoError(t, gdb.Model(&models.OrderLog{}).Where("order_id = ? AND reason = ?", o.ID, types.OrderChangeReasonSyncFailed).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestSyncOrder_RejectedStopsEarly(t *testing.T) {
	p := &fakePusher{failures: 100, err: woocommerce.ErrRejected}
	s, gdb := newTestSyncer(t, p, 5)
	o := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)

	require.ErrorIs(t, s.SyncOrder(context.Background(), o.ID), ErrSyncFailed)
	require.Len(t, p.Calls(), 1)
}

func TestSyncOrder_ChangedDuringPushStaysUnpushed(t *testing.T) {
	p := &fakePusher{}
	s, gdb := newTestSyncer(t, p, 1)
	o := seedOrder(t, gdb, types.OrderStatusPartlyPaid, 5000)
	p.onPush = func() {
		gdb.Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]any{"version": gorm.Expr("version + 1")})
	}

	require.NoError(t, s.SyncOrder(context.Background(), o.ID))
	got := loadOrder(t, gdb, o.ID)
	require.False(t, got.Pushed)
	require.NotNil(t, got.ExternalOrderID, "remote id is kept so the next push updates instead of creating")
}

func TestSweepOnce(t *testing.T) {
	p := &fakePusher{}
	s, gdb := newTestSyncer(t, p, 1)
	_ = seedOrder(t, gdb, types.OrderStatusPending, 0)
	paid := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)
	pushed := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)
	require.NoError(t, gdb.Model(&models.Order{}).Where("id = ?", pushed.ID).Update("pushed", true).Error)

	n, err := s.SweepOnce(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// already queued orders are not queued twice
	s.Enqueue(paid.ID)
	s.Enqueue(paid.ID)
	require.Len(t, s.queue, 1)
	require.Equal(t, paid.ID, <-s.queue)
}

func TestEnqueue_DisabledIsNoop(t *testing.T) {
	s := NewSyncer(dbtest.New(t), nil, &config.Config{Sync: config.SyncConfig{Enabled: true}}, zap.NewNop().Sugar())
	s.Enqueue("x")
	require.Len(t, s.queue, 0)
}

func TestWorkers_DrainQueue(t *testing.T) {
	p := &fakePusher{}
	s, gdb := newTestSyncer(t, p, 1)
	o := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)

	ctx, cancel := context.WithCancel(context.Background())
	s.runWorkers(ctx)
	s.Enqueue(o.ID)

	require.Eventually(t, func() bool {
		var got models.Order
		return gdb.Where("id = ?", o.ID).First(&got).Error == nil && got.Pushed
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	s.wg.Wait()
}

func TestResync(t *testing.T) {
	p := &fakePusher{}
	s, gdb := newTestSyncer(t, p, 1)
	o := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)
	require.NoError(t, s.SyncOrder(context.Background(), o.ID))
	require.True(t, loadOrder(t, gdb, o.ID).Pushed)

	require.NoError(t, s.Resync(context.Background(), o.ID))
	got := loadOrder(t, gdb, o.ID)
	require.False(t, got.Pushed)
	require.Equal(t, o.Version+1, got.Version)
	require.Equal(t, o.ID, <-s.queue)

	require.ErrorIs(t, s.Resync(context.Background(), "missing"), gorm.ErrRecordNotFound)
}

// wooStore is an in-memory order endpoint. The first create is stored at
// once but answered only after stall.
type wooStore struct {
	mu      sync.Mutex
	orders  map[int64]string
	creates int
	stall   time.Duration
}

func (s *wooStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const base = "/wp-json/wc/v3/orders"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == base:
		ref := r.URL.Query().Get("search")
		out := []map[string]any{}
		s.mu.Lock()
		for id, have := range s.orders {
			if have == ref {
				out = append(out, map[string]any{"id": id, "meta_data": []map[string]string{{"key": "_dropship_reference", "value": have}}})
			}
		}
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && r.URL.Path == base:
		var body struct {
			MetaData []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"meta_data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		ref := ""
		for _, m := range body.MetaData {
			if m.Key == "_dropship_reference" {
				ref = m.Value
			}
		}
		s.mu.Lock()
		s.creates++
		id := int64(100 + s.creates)
		s.orders[id] = ref
		first := s.creates == 1
		s.mu.Unlock()
		if first {
			time.Sleep(s.stall)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, base+"/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, base+"/"), 10, 64)
		s.mu.Lock()
		_, ok := s.orders[id]
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"code":"woocommerce_rest_shop_order_invalid_id"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	default:
		http.NotFound(w, r)
	}
}

func (s *wooStore) count() (creates, orders int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, len(s.orders)
}

// A create whose response is lost must not be repeated on retry.
func TestSyncOrder_LostCreateResponseMakesOneRemoteOrder(t *testing.T) {
	store := &wooStore{orders: map[int64]string{}, stall: 300 * time.Millisecond}
	srv := httptest.NewServer(store)
	defer srv.Close()

	client := woocommerce.NewClient(config.SyncConfig{BaseURL: srv.URL, ConsumerKey: "ck", ConsumerSecret: "cs", Timeout: 100 * time.Millisecond})
	s, gdb := newTestSyncer(t, client, 3)
	o := seedOrder(t, gdb, types.OrderStatusProcessing, 10000)

	require.NoError(t, s.SyncOrder(context.Background(), o.ID))

	creates, orders := store.count()
	require.Equal(t, 1, creates)
	require.Equal(t, 1, orders)
	got := loadOrder(t, gdb, o.ID)
	require.True(t, got.Pushed)
	require.Equal(t, "101", *got.ExternalOrderID)

	// a later resync still updates the same remote order
	require.NoError(t, gdb.Model(&models.Order{}).Where("id = ?", o.ID).Update("external_order_id", nil).Error)
	require.NoError(t, s.SyncOrder(context.Background(), o.ID))
	creates, _ = store.count()
	require.Equal(t, 1, creates)
}
