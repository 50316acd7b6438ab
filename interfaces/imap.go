package interfaces

import (
	"context"
	"time"
)

// MailClient is a per-account protocol client built on the connection pool.
type MailClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	ListAndUpsertFolders(ctx context.Context) ([]string, error)
	SyncMessages(ctx context.Context, folderPath string, limit int) (*SyncResult, error)
	FolderStatus(ctx context.Context, folderPath string) (*FolderStatus, error)
	FetchBody(ctx context.Context, messageID string) (*MessageBody, error)
	MarkRead(ctx context.Context, messageID string) (bool, error)
}

type MailClientFactory interface {
	NewClient(accountID string) MailClient
}

// AccountSyncer runs one full folder and message sync for an account.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, accountID string) (*AccountSyncResult, error)
}

type FolderStatus struct {
	Messages    uint32
	Unseen      uint32
	UidNext     uint32
	UidValidity uint32
}

type SyncResult struct {
	Folder  string
	Total   uint32
	Unseen  uint32
	Fetched int
	Created int
	Updated int
	Skipped int
}

type AccountSyncResult struct {
	AccountID string
	Folders   []string
	Results   []*SyncResult
	Duration  time.Duration
}

func (r *AccountSyncResult) MessagesProcessed() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, res := range r.Results {
		total += res.Fetched
	}
	return total
}

type MessageBody struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

type PoolStats struct {
	Accounts map[string]PoolAccountStats `json:"accounts"`
	Closed   bool                        `json:"closed"`
}

type PoolAccountStats struct {
	Connecting int `json:"connecting"`
	Idle       int `json:"idle"`
	InUse      int `json:"inUse"`
}
