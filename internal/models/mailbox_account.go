package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/utils"
)

// MailboxAccount is managed outside the engine; only LastSyncAt is written here.
type MailboxAccount struct {
	ID                  string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID              string     `gorm:"column:user_id;type:varchar(50);index" json:"userId"`
	Host                string     `gorm:"column:host;type:varchar(255);not null" json:"host"`
	Port                int        `gorm:"column:port;not null;default:993" json:"port"`
	UseTLS              bool       `gorm:"column:use_tls;not null;default:true" json:"useTls"`
	Address             string     `gorm:"column:address;type:varchar(255);index;not null" json:"address"`
	Username            string     `gorm:"column:username;type:varchar(255)" json:"username"`
	EncryptedSecret     string     `gorm:"column:encrypted_secret;type:text" json:"-"`
	Active              bool       `gorm:"column:active;not null;default:true;index" json:"active"`
	SyncEnabled         bool       `gorm:"column:sync_enabled;not null;default:true;index" json:"syncEnabled"`
	SyncIntervalSeconds int        `gorm:"column:sync_interval_seconds;not null;default:0" json:"syncIntervalSeconds"`
	LastSyncAt          *time.Time `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	CreatedAt           time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (MailboxAccount) TableName() string {
	return "mailbox_accounts"
}

func (m *MailboxAccount) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}

// LoginName is the IMAP login, which is the address unless a separate username is set.
func (m *MailboxAccount) LoginName() string {
	return utils.FirstNonEmpty(m.Username, m.Address)
}

func (m *MailboxAccount) IsSyncable() bool {
	return m.Active && m.SyncEnabled
}
