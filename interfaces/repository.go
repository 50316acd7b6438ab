package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/models"
)

type MailboxAccountRepository interface {
	Ping(ctx context.Context) error
	GetByID(ctx context.Context, id string) (*models.MailboxAccount, error)
	ListSyncable(ctx context.Context) ([]*models.MailboxAccount, error)
	UpdateLastSync(ctx context.Context, id string, at time.Time) error
}

type FolderRepository interface {
	// Upsert writes name/delimiter/specialUse/subscribed by (account, path) and never touches counters.
	Upsert(ctx context.Context, folder *models.Folder) (*models.Folder, error)
	GetByID(ctx context.Context, id string) (*models.Folder, error)
	GetByPath(ctx context.Context, accountID, path string) (*models.Folder, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Folder, error)
	UpdateCounters(ctx context.Context, id string, total, unread int) error
	Delete(ctx context.Context, id string) error
}

type MessageRepository interface {
	GetByMessageID(ctx context.Context, accountID, messageID string) (*models.Message, error)
	// Create inserts unless (account, message id) exists; created is false when the row was already there.
	Create(ctx context.Context, message *models.Message) (created bool, err error)
	UpdateFlags(ctx context.Context, id string, flags models.MessageFlags) error
	UpdateBody(ctx context.Context, id string, text, html string) error
	CountByFolder(ctx context.Context, folderID string, unreadOnly bool) (int64, error)
	CountUnread(ctx context.Context, accountID string) (int64, error)
	DeleteOrphans(ctx context.Context, accountID string) (int64, error)
}

type ProcessedMessageRepository interface {
	// Append is idempotent per (account, message id).
	Append(ctx context.Context, accountID, messageID, folderPath string) error
}
