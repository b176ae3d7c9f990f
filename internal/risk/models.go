package risk

import (
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventBetLimitViolation EventType = "bet_limit_violation"
	EventAutoFreeze        EventType = "auto_freeze"
)

const FreezeReason = "Suspicious activity detected"

type SecurityEvent struct {
	EventID   string            `gorm:"column:event_id;primaryKey;type:varchar(36)"`
	AccountID string            `gorm:"column:account_id;type:varchar(36);not null;index:idx_security_account_type,priority:1"`
	Type      EventType         `gorm:"column:type;type:varchar(40);not null;index:idx_security_account_type,priority:2"`
	Detail    datatypes.JSONMap `gorm:"column:detail"`
	CreatedAt time.Time         `gorm:"column:created_at;not null;index"`
}

func (SecurityEvent) TableName() string { return "security_events" }
