package notification_log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/db/dbtest"
	"github.com/fatflowers/dropship/pkg/logctx"
)

func TestReceivedAndSave(t *testing.T) {
	s := New(dbtest.New(t), zap.NewNop().Sugar())
	ctx := logctx.WithTraceID(context.Background(), "trace-1")

	entry := Received(ctx, "mobile_money", []byte("reference=DS-1&status=Paid"))
	require.Equal(t, "trace-1", entry.TraceID)
	require.Equal(t, `"reference=DS-1&status=Paid"`, string(entry.Data))

	s.Save(ctx, entry)
	Finish(entry, models.PaymentNotificationLogStatusHandled, "DS-1", map[string]string{"result": "applied"})
	s.Save(ctx, entry)
	s.Save(ctx, nil)
	s.Wait()

	rows, err := s.ListByReference(ctx, "DS-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, models.PaymentNotificationLogStatusHandled, rows[0].Status)
	require.NotNil(t, rows[0].Result)
}

func TestReceived_KeepsJSON(t *testing.T) {
	entry := Received(context.Background(), "card", []byte(`{"type":"charge.succeeded"}`))
	require.JSONEq(t, `{"type":"charge.succeeded"}`, string(entry.Data))
}

func TestReceived_FormBodyKeepsRawCharacters(t *testing.T) {
	body := "reference=DS-2&status=Paid&pollurl=https://pay.test/poll?id=<7>"
	entry := Received(context.Background(), "mobile_money", []byte(body))
	require.Equal(t, `"`+body+`"`, string(entry.Data))

	Finish(entry, models.PaymentNotificationLogStatusHandled, "DS-2", map[string]string{"raw": "a&b"})
	require.NotNil(t, entry.Result)
	require.Equal(t, `{"raw":"a&b"}`, string(*entry.Result))
}
