package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
)

// Notifier never fails from the caller's point of view.
type Notifier interface {
	NotifyNewMail(ctx context.Context, accountID string, summary dto.NewMailSummary)
	NotifySyncError(ctx context.Context, accountID string, syncErr error)
}

// Channel is one real-time delivery transport keyed by user id.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, userID string, event dto.NewMailEvent) error
}
