package notification_log

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/tool"
)

type saveReq struct {
	ctx   context.Context
	entry models.PaymentNotificationLog
}

// Service writes audit rows off the request path. A single writer keeps the
// received -> handled updates of one callback in order.
type Service struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	queue chan saveReq
	wg    sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	s := &Service{db: db, log: log, queue: make(chan saveReq, 256)}
	go s.writer()
	return s
}

func (s *Service) writer() {
	for req := range s.queue {
		s.write(req.ctx, &req.entry)
		s.wg.Done()
	}
}

func (s *Service) write(ctx context.Context, entry *models.PaymentNotificationLog) {
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.Save(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
	}
}

// marshalRaw encodes v without HTML escaping so audit rows keep provider
// payloads byte for byte.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Received builds the initial audit row for an inbound callback. Non-JSON
// bodies (form posts) are stored as a JSON string.
func Received(ctx context.Context, provider string, body []byte) *models.PaymentNotificationLog {
	data := datatypes.JSON(body)
	if !json.Valid(body) {
		raw, _ := marshalRaw(string(body))
		data = raw
	}
	return &models.PaymentNotificationLog{
		ID:               tool.GenerateUUIDV7(),
		ProviderID:       provider,
		TraceID:          logctx.TraceID(ctx),
		NotificationTime: time.Now().UTC(),
		Data:             data,
		Status:           models.PaymentNotificationLogStatusReceived,
	}
}

// Finish stamps the outcome on entry.
func Finish(entry *models.PaymentNotificationLog, status models.PaymentNotificationLogStatus, reference string, result any) {
	if entry == nil {
		return
	}
	entry.Status = status
	if reference != "" {
		entry.Reference = reference
	}
	if result != nil {
		if raw, err := marshalRaw(result); err == nil {
			r := datatypes.JSON(raw)
			entry.Result = &r
		}
	}
}

// Save asynchronously persists a payment notification log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	s.wg.Add(1)
	s.queue <- saveReq{ctx: ctx, entry: *log}
}

// Wait blocks until pending saves finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) ListByReference(ctx context.Context, reference string) ([]models.PaymentNotificationLog, error) {
	var out []models.PaymentNotificationLog
	err := s.db.WithContext(ctx).Where("reference = ?", reference).Order("notification_time").Find(&out).Error
	return out, err
}

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			s.Wait()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
