package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
	// Rejected 签名校验失败，未改动任何状态
	PaymentNotificationLogStatusRejected PaymentNotificationLogStatus = "rejected"
	// Unrecognized reference 无法匹配任何结账或订单，需人工排查
	PaymentNotificationLogStatusUnrecognized PaymentNotificationLogStatus = "unrecognized"
)

type PaymentNotificationLog struct {
	ID               string                       `gorm:"column:id;type:varchar(36);primary_key" json:"id"`
	ProviderID       string                       `gorm:"column:provider_id;type:varchar(64);not null" json:"provider_id"`
	TraceID          string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Reference        string                       `gorm:"column:reference;type:varchar(128);index" json:"reference"`
	NotificationTime time.Time                    `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON               `gorm:"column:data" json:"data"`
	Result           *datatypes.JSON              `gorm:"column:result" json:"result"`
	Status           PaymentNotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
