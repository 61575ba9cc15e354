package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/dropship/pkg/money"
	"github.com/fatflowers/dropship/pkg/types"
)

// PaymentReceipt 一次支付渠道交易的记录；一个订单可有多条（分期、补款、重试）
// 只会从 pending 流转到 paid/failed，不删除
type PaymentReceipt struct {
	ID       string                `gorm:"column:id;primary_key;type:varchar(36)" json:"id"`
	OrderID  string                `gorm:"column:order_id;type:varchar(36);not null;index" json:"order_id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	// Reference 我方生成的支付 reference
	Reference string `gorm:"column:reference;type:varchar(96);not null;uniqueIndex" json:"reference"`
	// ProviderReference 渠道侧交易号，可能在发起后才异步返回
	ProviderReference *string `gorm:"column:provider_reference;type:varchar(128);index" json:"provider_reference"`
	// Amount 最小货币单位
	Amount   int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status   types.ReceiptStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	PollURL  string              `gorm:"column:poll_url;type:varchar(512)" json:"poll_url"`
	Metadata datatypes.JSONMap   `gorm:"column:metadata" json:"metadata"`
	PaidAt   *time.Time          `gorm:"column:paid_at;default:null" json:"paid_at"`
	// LastPolledAt 轮询器最近一次向渠道查询的时间，轮询按它排序
	LastPolledAt *time.Time `gorm:"column:last_polled_at;default:null;index" json:"last_polled_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (PaymentReceipt) TableName() string {
	return "payment_receipts"
}

func (r *PaymentReceipt) AmountMajor() decimal.Decimal {
	return money.ToMajor(r.Amount)
}
