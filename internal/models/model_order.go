package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/dropship/pkg/money"
	"github.com/fatflowers/dropship/pkg/types"
)

// Order 本地订单账本，金额字段均为最小货币单位
type Order struct {
	ID         string  `gorm:"column:id;primary_key;type:varchar(36)" json:"id"`
	CheckoutID string  `gorm:"column:checkout_id;type:varchar(36);not null;uniqueIndex" json:"checkout_id"`
	UserID     *string `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Currency   string  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Total      int64   `gorm:"column:total;type:bigint;not null" json:"total"`
	// Balance 待支付余额 = max(0, Total - AmountPaid)
	Balance         int64                 `gorm:"column:balance;type:bigint;not null" json:"balance"`
	AmountPaid      int64                 `gorm:"column:amount_paid;type:bigint;not null;default:0" json:"amount_paid"`
	Status          types.OrderStatus     `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	PaymentProvider types.PaymentProvider `gorm:"column:payment_provider;type:varchar(32);not null" json:"payment_provider"`
	// PaymentReference 最近一次发起支付的 reference
	PaymentReference string `gorm:"column:payment_reference;type:varchar(96);not null;index" json:"payment_reference"`
	// ExternalOrderID 外部订单系统（WooCommerce）中的订单号，首次同步后回填
	ExternalOrderID *string `gorm:"column:external_order_id;type:varchar(64)" json:"external_order_id"`
	// Pushed 当前状态是否已同步到外部订单系统
	Pushed   bool       `gorm:"column:pushed;not null;default:false;index" json:"pushed"`
	PushedAt *time.Time `gorm:"column:pushed_at;default:null" json:"pushed_at"`
	// Version 每次账本变更自增，同步成功时用于条件回写 pushed
	Version   int64      `gorm:"column:version;type:bigint;not null;default:1" json:"version"`
	PaidAt    *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) TotalMajor() decimal.Decimal      { return money.ToMajor(o.Total) }
func (o *Order) BalanceMajor() decimal.Decimal    { return money.ToMajor(o.Balance) }
func (o *Order) AmountPaidMajor() decimal.Decimal { return money.ToMajor(o.AmountPaid) }

// Snapshot copies the order for before/after audit rows.
func (o *Order) Snapshot() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}
