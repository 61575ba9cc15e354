package handlers

import (
	"github.com/fatflowers/dropship/internal/app/service/statistics"
	"github.com/fatflowers/dropship/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespCheckout wraps CheckoutView in the standard envelope.
type RespCheckout struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CheckoutView             `json:"data"`
}

type RespCallback struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CallbackResponse         `json:"data"`
}

type RespListOrders struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListOrdersResponse       `json:"data"`
}

type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}
