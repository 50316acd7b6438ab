package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/utils"
)

// ProcessedMessage is the append-only audit trail of messages first mirrored by the engine.
type ProcessedMessage struct {
	ID          string    `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID   string    `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_processed_account_message_id"`
	MessageID   string    `gorm:"column:message_id;type:varchar(998);not null;uniqueIndex:idx_processed_account_message_id"`
	FolderPath  string    `gorm:"column:folder_path;type:varchar(500)"`
	ProcessedAt time.Time `gorm:"column:processed_at;type:timestamp;not null"`
}

func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

func (p *ProcessedMessage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("proc", 16)
	}
	return nil
}
