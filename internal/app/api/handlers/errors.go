package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/response"
)

const (
	msgPaymentNotStarted   = "payment could not be started"
	msgPaymentNotCompleted = "payment could not be completed"
)

// writeError maps engine errors onto the envelope. Validation messages are
// shown as is; everything internal collapses into userMsg.
func writeError(c *gin.Context, base *zap.SugaredLogger, err error, userMsg string) {
	var ve *reconciliation.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, ve.Error()))
	case errors.Is(err, reconciliation.ErrValidation):
		c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, reconciliation.ErrNotFound):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
	case errors.Is(err, reconciliation.ErrCheckoutClosed):
		c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeConflict, "checkout is no longer payable"))
	case errors.Is(err, reconciliation.ErrConflict), errors.Is(err, reconciliation.ErrClaimLost):
		c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeConflict, err.Error()))
	case errors.Is(err, reconciliation.ErrProviderInitiate):
		logctx.FromGin(c, base).Warnw("payment initiate failed", "err", err)
		c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeError, msgPaymentNotStarted))
	default:
		logctx.FromGin(c, base).Errorw("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeError, userMsg))
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, msg))
}
