package models

import (
	"time"

	"github.com/fatflowers/dropship/pkg/types"
)

// MobilePayment 移动支付（USSD 推送）渠道的交易记录
// PENDING -> PUSHED -> PAID|FAILED|CANCELLED，终态不可再变更
// provider_reference 仅在非空时唯一（部分唯一索引，见 platform/db）
type MobilePayment struct {
	ID                string                    `gorm:"column:id;primary_key;type:varchar(36)" json:"id"`
	Reference         string                    `gorm:"column:reference;type:varchar(96);not null;uniqueIndex" json:"reference"`
	ProviderReference *string                   `gorm:"column:provider_reference;type:varchar(128)" json:"provider_reference"`
	Phone             string                    `gorm:"column:phone;type:varchar(32)" json:"phone"`
	Method            string                    `gorm:"column:method;type:varchar(32)" json:"method"`
	Amount            int64                     `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Status            types.MobilePaymentStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	// RawStatus 渠道返回的原始状态字符串
	RawStatus string `gorm:"column:raw_status;type:varchar(64)" json:"raw_status"`
	PollURL   string `gorm:"column:poll_url;type:varchar(512)" json:"poll_url"`
	// Hash 渠道最近一次响应中的签名
	Hash      string    `gorm:"column:hash;type:varchar(256)" json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MobilePayment) TableName() string {
	return "mobile_payments"
}
