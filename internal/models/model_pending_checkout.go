package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/dropship/pkg/types"
)

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// CheckoutItem 下单时的商品快照，价格以最小货币单位保存
type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (i CheckoutItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// CheckoutData 购物车、收货与账单信息，整体以 JSON 保存
type CheckoutData struct {
	Items    []CheckoutItem `json:"items"`
	Shipping Address        `json:"shipping"`
	Billing  Address        `json:"billing"`
	// Phone 移动支付推送的手机号
	Phone  string         `json:"phone,omitempty"`
	Note   string         `json:"note,omitempty"`
	Extras map[string]any `json:"extras,omitempty"`
}

// PendingCheckout 进行中的结账记录
// 状态只能单向流转：pending -> processing -> paid|cancelled，或 pending -> expired|cancelled
type PendingCheckout struct {
	ID        string                `gorm:"column:id;primary_key;type:varchar(36)" json:"id"`
	Reference string                `gorm:"column:reference;type:varchar(96);not null;uniqueIndex" json:"reference"`
	UserID    *string               `gorm:"column:user_id;type:varchar(64)" json:"user_id"`
	Provider  types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	Currency  string                `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// Total 购物车总价（最小货币单位）
	Total int64 `gorm:"column:total;type:bigint;not null" json:"total"`
	// Amount 本次需支付金额 = Total * PaymentPercentage / 100
	Amount            int64                             `gorm:"column:amount;type:bigint;not null" json:"amount"`
	PaymentPercentage int                               `gorm:"column:payment_percentage;not null" json:"payment_percentage"`
	CheckoutData      datatypes.JSONType[*CheckoutData] `gorm:"column:checkout_data" json:"checkout_data"`
	Status            types.CheckoutStatus              `gorm:"column:status;type:varchar(16);not null;index:idx_pending_checkouts_status_expires_at,priority:1" json:"status"`
	ExpiresAt         time.Time                         `gorm:"column:expires_at;not null;index:idx_pending_checkouts_status_expires_at,priority:2" json:"expires_at"`
	CreatedAt         time.Time                         `json:"created_at"`
	UpdatedAt         time.Time                         `json:"updated_at"`
}

func (PendingCheckout) TableName() string {
	return "pending_checkouts"
}

// Data never returns nil.
func (c *PendingCheckout) Data() *CheckoutData {
	if c == nil || c.CheckoutData.Data() == nil {
		return &CheckoutData{}
	}
	return c.CheckoutData.Data()
}

func (c *PendingCheckout) IsExpired(now time.Time) bool {
	return c != nil && !c.ExpiresAt.After(now)
}
