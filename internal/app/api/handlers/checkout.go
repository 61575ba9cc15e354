package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/response"
	"github.com/fatflowers/dropship/pkg/types"
)

type CreateCheckoutRequest struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider" binding:"required"`
	// Percentage of the cart paid upfront; 0 means the full amount.
	Percentage int                       `json:"percentage"`
	Items      []reconciliation.CartItem `json:"items" binding:"required,min=1"`
	Shipping   models.Address            `json:"shipping"`
	Billing    models.Address            `json:"billing"`
	Phone      string                    `json:"phone"`
	Note       string                    `json:"note"`
	Extras     map[string]any            `json:"extras"`
	// Method picks the mobile wallet.
	Method       string `json:"method"`
	PaymentToken string `json:"payment_token"`
	// SkipInitiate leaves the checkout pending for a later initiate call.
	SkipInitiate bool `json:"skip_initiate"`
}

type InitiateRequest struct {
	Phone        string `json:"phone"`
	Method       string `json:"method"`
	PaymentToken string `json:"payment_token"`
}

// @Summary      Create checkout
// @Description  Prices the cart from the catalog, stores a pending checkout and, unless skip_initiate is set, starts the payment.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        request body handlers.CreateCheckoutRequest true "Cart, addresses and provider"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/checkout [post]
func ApiCreateCheckout(eng PaymentEngine, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		provider, err := types.ParsePaymentProvider(req.Provider)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		var userID *string
		if s := strings.TrimSpace(req.UserID); s != "" {
			userID = lo.ToPtr(s)
		}
		chk, err := eng.CreateCheckout(c.Request.Context(), reconciliation.CreateCheckoutRequest{
			UserID:     userID,
			Provider:   provider,
			Percentage: req.Percentage,
			Items:      req.Items,
			Shipping:   req.Shipping,
			Billing:    req.Billing,
			Phone:      req.Phone,
			Note:       req.Note,
			Extras:     withMethod(req.Extras, req.Method),
		})
		if err != nil {
			writeError(c, log, err, msgPaymentNotStarted)
			return
		}
		if req.SkipInitiate {
			c.JSON(http.StatusOK, response.OKT(toCheckoutView(chk)))
			return
		}
		initiate(c, eng, log, chk.Reference, reconciliation.InitiateOptions{
			PaymentToken: req.PaymentToken,
			Phone:        req.Phone,
			Method:       req.Method,
		})
	}
}

func withMethod(extras map[string]any, method string) map[string]any {
	if method == "" {
		return extras
	}
	if extras == nil {
		extras = map[string]any{}
	}
	extras["mobile_method"] = method
	return extras
}

// @Summary      Initiate checkout payment
// @Description  Starts the provider payment for a pending checkout. A checkout already being paid is returned as is.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        reference path string true "Checkout reference"
// @Param        request body handlers.InitiateRequest false "Per-attempt payment details"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/checkout/{reference}/initiate [post]
func ApiInitiatePayment(eng PaymentEngine, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitiateRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		initiate(c, eng, log, c.Param("reference"), reconciliation.InitiateOptions{
			PaymentToken: req.PaymentToken,
			Phone:        req.Phone,
			Method:       req.Method,
		})
	}
}

func initiate(c *gin.Context, eng PaymentEngine, log *zap.SugaredLogger, ref string, opts reconciliation.InitiateOptions) {
	out, err := eng.InitiatePayment(c.Request.Context(), ref, opts)
	if errors.Is(err, reconciliation.ErrClaimLost) {
		// someone else is already paying; report where things stand
		view, verr := eng.GetCheckout(c.Request.Context(), ref, false)
		if verr != nil {
			writeError(c, log, verr, msgPaymentNotStarted)
			return
		}
		c.JSON(http.StatusOK, response.OKT(fromEngineView(view)))
		return
	}
	if err != nil {
		writeError(c, log, err, msgPaymentNotStarted)
		return
	}
	c.JSON(http.StatusOK, response.OKT(fromInitiate(out)))
}

// @Summary      Get checkout
// @Description  Returns checkout, order and receipts. With refresh=true pending receipts are first checked with the provider.
// @Tags         Checkout
// @Produce      json
// @Param        reference path string true "Checkout or receipt reference"
// @Param        refresh query bool false "Poll the provider for pending receipts"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/checkout/{reference} [get]
func ApiGetCheckout(eng PaymentEngine, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh := c.Query("refresh") == "true" || c.Query("refresh") == "1"
		view, err := eng.GetCheckout(c.Request.Context(), c.Param("reference"), refresh)
		if err != nil {
			writeError(c, log, err, msgPaymentNotCompleted)
			return
		}
		c.JSON(http.StatusOK, response.OKT(fromEngineView(view)))
	}
}

// @Summary      Cancel checkout
// @Description  Cancels a checkout whose payment has not started.
// @Tags         Checkout
// @Produce      json
// @Param        reference path string true "Checkout reference"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/checkout/{reference}/cancel [post]
func ApiCancelCheckout(eng PaymentEngine, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chk, err := eng.Cancel(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, log, err, msgPaymentNotCompleted)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toCheckoutView(chk)))
	}
}

type PayBalanceRequest struct {
	Provider     string `json:"provider" binding:"required"`
	Phone        string `json:"phone"`
	Method       string `json:"method"`
	PaymentToken string `json:"payment_token"`
}

// @Summary      Pay order balance
// @Description  Starts a payment for the outstanding balance of a partly paid order.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        order_id path string true "Order id"
// @Param        request body handlers.PayBalanceRequest true "Provider and payment details"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/orders/{order_id}/pay-balance [post]
func ApiPayBalance(eng PaymentEngine, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayBalanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		provider, err := types.ParsePaymentProvider(req.Provider)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		out, err := eng.PayBalance(c.Request.Context(), c.Param("order_id"), provider, reconciliation.InitiateOptions{
			PaymentToken: req.PaymentToken,
			Phone:        req.Phone,
			Method:       req.Method,
		})
		if err != nil {
			writeError(c, log, err, msgPaymentNotStarted)
			return
		}
		c.JSON(http.StatusOK, response.OKT(fromInitiate(out)))
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, eng PaymentEngine, log *zap.SugaredLogger) {
	r.POST("", ApiCreateCheckout(eng, log))
	r.GET("/:reference", ApiGetCheckout(eng, log))
	r.POST("/:reference/initiate", ApiInitiatePayment(eng, log))
	r.POST("/:reference/cancel", ApiCancelCheckout(eng, log))
}

func RegisterOrderRoutes(r gin.IRouter, eng PaymentEngine, log *zap.SugaredLogger) {
	r.POST("/:order_id/pay-balance", ApiPayBalance(eng, log))
}
