package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/app/service/statistics"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/response"
	"github.com/fatflowers/dropship/pkg/types"
)

// Reporting is the statistics surface the admin routes use.
type Reporting interface {
	ScanOrders(ctx context.Context, req *statistics.ScanOrdersRequest) (*statistics.ScanOrdersResponse, error)
	GetStatistic(ctx context.Context, req *statistics.StatisticRequest) (*statistics.StatisticResponse, error)
}

// Resyncer re-sends an order to the external order system.
type Resyncer interface {
	Resync(ctx context.Context, orderID string) error
}

type ListOrdersRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ListOrdersResponse struct {
	Items []*OrderView `json:"items"`
	Total int64        `json:"total"`
}

// @Summary      List orders (Admin)
// @Description  Paginated, filterable order listing.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.ListOrdersRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListOrders
// @Router       /api/v1/admin/orders/list [post]
func ApiListOrders(svc Reporting, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListOrdersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.ScanOrders(c.Request.Context(), &statistics.ScanOrdersRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(o *models.Order, _ int) *OrderView { return toOrderView(o) })
		c.JSON(http.StatusOK, response.OKT(&ListOrdersResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Order statistics (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.StatisticRequest true "Requested data items and filters"
// @Success      200  {object}  handlers.RespStatistic
// @Router       /api/v1/admin/statistics [post]
func ApiGetStatistic(svc Reporting) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Confirm cash payment (Admin)
// @Description  Settles a cash-on-delivery receipt once the courier collected the money.
// @Tags         Admin
// @Produce      json
// @Param        reference path string true "Payment reference"
// @Success      200  {object}  handlers.RespCallback
// @Router       /api/v1/admin/payments/{reference}/confirm [post]
func ApiConfirmPayment(eng PaymentEngine, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := eng.ConfirmManualPayment(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, log, err, msgPaymentNotCompleted)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CallbackResponse{Result: out.Result, Reference: out.Reference, Order: toOrderView(out.Order)}))
	}
}

// @Summary      Resync order (Admin)
// @Description  Marks the order unpushed and queues it for the external order system.
// @Tags         Admin
// @Produce      json
// @Param        order_id path string true "Order id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/orders/{order_id}/resync [post]
func ApiResyncOrder(sync Resyncer, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := sync.Resync(c.Request.Context(), c.Param("order_id"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
			return
		}
		if err != nil {
			writeError(c, log, err, "order could not be queued")
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterAdminRoutes(r gin.IRouter, eng PaymentEngine, stats Reporting, sync Resyncer, log *zap.SugaredLogger) {
	r.POST("/orders/list", ApiListOrders(stats, log))
	r.POST("/orders/:order_id/resync", ApiResyncOrder(sync, log))
	r.POST("/payments/:reference/confirm", ApiConfirmPayment(eng, log))
	r.POST("/statistics", ApiGetStatistic(stats))
}
