package mirror

import (
	"time"

	"github.com/customeros/mailsync/internal/models"
)

// Envelope is the parsed, validated view of one server message that the
// mirror persists. It is built at the protocol boundary.
type Envelope struct {
	MessageID    string
	UID          uint32
	UIDValidity  uint32
	Subject      string
	Date         *time.Time
	Size         uint32
	Flags        models.MessageFlags
	Participants models.Participants
	InReplyTo    string
	References   []string
}

func (e *Envelope) toMessage(folder *models.Folder) *models.Message {
	return &models.Message{
		AccountID:    folder.AccountID,
		FolderID:     folder.ID,
		MessageID:    e.MessageID,
		UID:          e.UID,
		Subject:      e.Subject,
		Participants: e.Participants,
		Date:         e.Date,
		Size:         e.Size,
		Flags:        e.Flags.Flags,
		IsRead:       e.Flags.IsRead,
		IsFlagged:    e.Flags.IsFlagged,
		IsDeleted:    e.Flags.IsDeleted,
		InReplyTo:    e.InReplyTo,
		References:   e.References,
	}
}
