package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/utils"
)

// Message is created once per (account, message id); later syncs only touch the flag columns.
type Message struct {
	ID           string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID    string         `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_message_account_message_id" json:"accountId"`
	FolderID     string         `gorm:"column:folder_id;type:varchar(50);index" json:"folderId"`
	MessageID    string         `gorm:"column:message_id;type:varchar(998);not null;uniqueIndex:idx_message_account_message_id" json:"messageId"`
	UID          uint32         `gorm:"column:uid;index" json:"uid"`
	Subject      string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Participants Participants   `gorm:"column:participants;type:jsonb" json:"participants"`
	Date         *time.Time     `gorm:"column:date;type:timestamp;index" json:"date"`
	Size         uint32         `gorm:"column:size" json:"size"`
	Flags        pq.StringArray `gorm:"column:flags;type:text[]" json:"flags"`
	IsRead       bool           `gorm:"column:is_read;not null;default:false;index" json:"isRead"`
	IsFlagged    bool           `gorm:"column:is_flagged;not null;default:false" json:"isFlagged"`
	IsDeleted    bool           `gorm:"column:is_deleted;not null;default:false" json:"isDeleted"`
	InReplyTo    string         `gorm:"column:in_reply_to;type:varchar(998)" json:"inReplyTo"`
	References   pq.StringArray `gorm:"column:references;type:text[]" json:"references"`
	TextContent  string         `gorm:"column:text_content;type:text" json:"textContent,omitempty"`
	HTMLContent  string         `gorm:"column:html_content;type:text" json:"htmlContent,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Message) TableName() string {
	return "mail_messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	return nil
}

// MessageFlags is the mutable part of a Message.
type MessageFlags struct {
	Flags     []string
	IsRead    bool
	IsFlagged bool
	IsDeleted bool
}

func (m *Message) CurrentFlags() MessageFlags {
	return MessageFlags{
		Flags:     m.Flags,
		IsRead:    m.IsRead,
		IsFlagged: m.IsFlagged,
		IsDeleted: m.IsDeleted,
	}
}

func (f MessageFlags) Equal(other MessageFlags) bool {
	return f.IsRead == other.IsRead &&
		f.IsFlagged == other.IsFlagged &&
		f.IsDeleted == other.IsDeleted &&
		utils.SameStringSet(f.Flags, other.Flags)
}
