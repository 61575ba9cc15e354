package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	notificationlog "github.com/fatflowers/dropship/internal/app/service/notification_log"
	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/response"
	"github.com/fatflowers/dropship/pkg/types"
)

// maxCallbackBody bounds what a provider may post to us.
const maxCallbackBody = 1 << 20

// AuditLog persists inbound provider callbacks.
type AuditLog interface {
	Save(ctx context.Context, entry *models.PaymentNotificationLog)
}

type CallbackResponse struct {
	Result    reconciliation.Result `json:"result"`
	Reference string                `json:"reference,omitempty"`
	Order     *OrderView            `json:"order,omitempty"`
}

type callbackHandler struct {
	eng   PaymentEngine
	audit AuditLog
	log   *zap.SugaredLogger
}

// @Summary      Provider webhook
// @Description  Receives an asynchronous payment notification. Authenticity is verified per provider before anything is applied. Replays are acknowledged without effect.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "card, mobile_money, redirect or cash"
// @Success      200  {object}  handlers.RespCallback
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /api/v1/payment/webhook/{provider} [post]
func (h *callbackHandler) webhook(c *gin.Context) {
	h.handle(c, reconciliation.SourceWebhook)
}

// @Summary      Provider return
// @Description  Landing endpoint for the customer coming back from a hosted payment page. Parameters are verified like a webhook.
// @Tags         Webhook
// @Produce      json
// @Param        provider path string true "Provider identifier"
// @Success      200  {object}  handlers.RespCallback
// @Router       /api/v1/payment/return/{provider} [get]
func (h *callbackHandler) returned(c *gin.Context) {
	h.handle(c, reconciliation.SourceReturn)
}

func (h *callbackHandler) handle(c *gin.Context, source reconciliation.Source) {
	ctx := c.Request.Context()
	log := logctx.FromGin(c, h.log)

	provider, err := types.ParsePaymentProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorMsg(response.APIResponseCodeNotFound, err.Error()))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody+1))
	if err != nil || len(body) > maxCallbackBody {
		log.Warnw("payment callback body unreadable", "provider", provider, "err", err, "size", len(body))
		c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, "unreadable body"))
		return
	}
	payload := body
	if len(payload) == 0 {
		payload = []byte(c.Request.URL.RawQuery)
	}
	entry := notificationlog.Received(ctx, string(provider), payload)
	h.audit.Save(ctx, entry)

	log.Infow("payment callback received", "provider", provider, "source", source)
	out, err := h.eng.HandleCallback(ctx, provider, gateway.Callback{
		Header: c.Request.Header,
		Query:  c.Request.URL.Query(),
		Body:   body,
	}, source)

	var ve *reconciliation.ValidationError
	switch {
	case err == nil:
		notificationlog.Finish(entry, models.PaymentNotificationLogStatusHandled, out.Reference, out.Result)
		h.audit.Save(ctx, entry)
		log.Infow("payment callback handled", "provider", provider, "reference", out.Reference, "result", out.Result)
		c.JSON(http.StatusOK, response.OKT(&CallbackResponse{Result: out.Result, Reference: out.Reference, Order: toOrderView(out.Order)}))
	case errors.Is(err, reconciliation.ErrAuthenticity):
		notificationlog.Finish(entry, models.PaymentNotificationLogStatusRejected, "", err.Error())
		h.audit.Save(ctx, entry)
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
	case errors.Is(err, reconciliation.ErrUnrecognizedCallback):
		// acknowledged so the provider stops retrying a reference we never issued
		notificationlog.Finish(entry, models.PaymentNotificationLogStatusUnrecognized, "", err.Error())
		h.audit.Save(ctx, entry)
		log.Warnw("payment callback for unknown reference", "provider", provider, "err", err)
		c.JSON(http.StatusOK, response.OKT(&CallbackResponse{Result: reconciliation.ResultIgnored}))
	case errors.As(err, &ve) && ve.Field == "provider":
		notificationlog.Finish(entry, models.PaymentNotificationLogStatusRejected, "", err.Error())
		h.audit.Save(ctx, entry)
		c.JSON(http.StatusNotFound, response.ErrorMsg(response.APIResponseCodeNotFound, ve.Error()))
	case errors.Is(err, gateway.ErrMalformed), errors.Is(err, reconciliation.ErrValidation):
		notificationlog.Finish(entry, models.PaymentNotificationLogStatusRejected, "", err.Error())
		h.audit.Save(ctx, entry)
		c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, "malformed callback"))
	default:
		// Storage or lock failures roll the whole apply back, so nothing was
		// recorded for this delivery. A 5xx asks the provider to send it again.
		notificationlog.Finish(entry, models.PaymentNotificationLogStatusHandleFailed, "", err.Error())
		h.audit.Save(ctx, entry)
		log.Errorw("payment callback handle failed", "provider", provider, "err", err)
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

func RegisterPaymentCallbackRoutes(r gin.IRouter, eng PaymentEngine, audit AuditLog, log *zap.SugaredLogger) {
	h := &callbackHandler{eng: eng, audit: audit, log: log}
	r.POST("/webhook/:provider", h.webhook)
	r.GET("/return/:provider", h.returned)
	r.POST("/return/:provider", h.returned)
}
