package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/dropship/pkg/types"
)

// OrderLog 订单变更日志，与订单变更写在同一事务里
// 使用场景：对账与问题排查
type OrderLog struct {
	ID        string `gorm:"column:id;primary_key;type:varchar(36)"`
	OrderID   string `gorm:"column:order_id;type:varchar(36);not null;index"`
	Reference string `gorm:"column:reference;type:varchar(96)"`
	// Reason 变更原因
	Reason types.OrderChangeReason `gorm:"column:reason;type:varchar(32);not null"`
	// Before 变更前的订单快照
	Before datatypes.JSONType[*Order] `gorm:"column:before"`
	// After 变更后的订单快照
	After datatypes.JSONType[*Order] `gorm:"column:after"`
	// Extra 额外上下文，如 receipt_id、渠道、同步错误
	Extra     datatypes.JSONMap `gorm:"column:extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_log"
}
