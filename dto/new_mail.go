package dto

import (
	"time"

	"github.com/customeros/mailsync/internal/enum"
)

// NewMailSummary is what the sync engine knows about new mail when it asks for a notification.
type NewMailSummary struct {
	Type              enum.NotificationType
	SenderDisplayName string
	Subject           string
	Folder            string
	MessageID         string
	Count             int
}

// NewMailEvent is the payload delivered to a user's real-time channels.
type NewMailEvent struct {
	Type              enum.NotificationType `json:"type"`
	UserID            string                `json:"userId"`
	AccountID         string                `json:"accountId"`
	SenderDisplayName string                `json:"senderDisplayName,omitempty"`
	Subject           string                `json:"subject,omitempty"`
	Folder            string                `json:"folder,omitempty"`
	MessageID         string                `json:"messageId,omitempty"`
	Count             int                   `json:"count,omitempty"`
	Error             string                `json:"error,omitempty"`
	Timestamp         time.Time             `json:"timestamp"`
}
