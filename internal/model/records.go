package model

import (
	"time"

	"gorm.io/gorm"
)

// OperationRecord 终态审计记录。
// 只记录已经走到终态的 Session，不是会话存储；页面刷新后一律新建 Session。
type OperationRecord struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"session_id"`
	Recipient     string         `gorm:"type:varchar(64);not null;index" json:"recipient"`
	Amount        string         `gorm:"type:varchar(80);not null" json:"amount"`
	Currency      string         `gorm:"type:varchar(10);not null" json:"currency"`
	Network       string         `gorm:"type:varchar(32);not null" json:"network"`
	State         string         `gorm:"type:varchar(20);not null;index" json:"state"` // success, error, aborted
	GasMethod     string         `gorm:"type:varchar(20)" json:"gas_method"`
	OperationHash string         `gorm:"type:varchar(80)" json:"operation_hash"`
	ErrorKind     string         `gorm:"type:varchar(20)" json:"error_kind"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message"`
	SafetyScore   int            `json:"safety_score"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OperationRecord) TableName() string {
	return "operation_records"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
// 审计记录和事件在同一个事务里落库，Relay 再异步搬运到 MQ。
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(64)" json:"key"`
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT, FAILED
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
