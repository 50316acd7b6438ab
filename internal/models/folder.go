package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

type Folder struct {
	ID             string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID      string    `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_folder_account_path" json:"accountId"`
	Path           string    `gorm:"column:path;type:varchar(500);not null;uniqueIndex:idx_folder_account_path" json:"path"`
	Name           string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Delimiter      string    `gorm:"column:delimiter;type:varchar(5)" json:"delimiter"`
	SpecialUse     string    `gorm:"column:special_use;type:varchar(20)" json:"specialUse"`
	Subscribed     bool      `gorm:"column:subscribed;not null;default:false" json:"subscribed"`
	TotalMessages  int       `gorm:"column:total_messages;not null;default:0" json:"totalMessages"`
	UnreadMessages int       `gorm:"column:unread_messages;not null;default:0" json:"unreadMessages"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Folder) TableName() string {
	return "mail_folders"
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = utils.GenerateNanoIDWithPrefix("fold", 16)
	}
	return nil
}

func (f *Folder) IsInbox() bool {
	return enum.IsInbox(f.Path, f.SpecialUse)
}
