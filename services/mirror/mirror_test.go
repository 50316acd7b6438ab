package mirror

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository/memstore"
)

type recordingNotifier struct {
	mu      sync.Mutex
	newMail []dto.NewMailSummary
}

func (n *recordingNotifier) NotifyNewMail(_ context.Context, _ string, summary dto.NewMailSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newMail = append(n.newMail, summary)
}

func (n *recordingNotifier) NotifySyncError(context.Context, string, error) {}

func setup(t *testing.T) (*Mirror, *memstore.Store, *recordingNotifier) {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	store := memstore.New()
	notifier := &recordingNotifier{}
	return NewMirror(store.Repositories(), notifier, log), store, notifier
}

func folder(t *testing.T, store *memstore.Store, path string) *models.Folder {
	f, err := store.Repositories().FolderRepository.Upsert(context.Background(), &models.Folder{AccountID: "acct_1", Path: path, Name: path})
	require.NoError(t, err)
	return f
}

func unread(messageID string, uid uint32) *Envelope {
	return &Envelope{
		MessageID: messageID,
		UID:       uid,
		Subject:   "Quarterly numbers",
		Participants: models.Participants{
			From: []models.Address{{Name: "Ana", Address: "ana@example.com"}},
		},
	}
}

func TestUpsertMessage_IsIdempotent(t *testing.T) {
	m, store, notifier := setup(t)
	inbox := folder(t, store, "INBOX")
	ctx := context.Background()

	res, err := m.UpsertMessage(ctx, inbox, unread("m1@example.com", 1))
	require.NoError(t, err)
	assert.True(t, res.Created)

	res, err = m.UpsertMessage(ctx, inbox, unread("m1@example.com", 1))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Updated)

	assert.Len(t, store.Messages("acct_1"), 1)
	assert.Len(t, store.Processed("acct_1"), 1)
	require.Len(t, notifier.newMail, 1)
	assert.Equal(t, "Ana", notifier.newMail[0].SenderDisplayName)
	assert.Equal(t, enum.NotificationNewEmail, notifier.newMail[0].Type)
}

func TestUpsertMessage_FlagOnlyUpdate(t *testing.T) {
	m, store, notifier := setup(t)
	inbox := folder(t, store, "INBOX")
	ctx := context.Background()

	_, err := m.UpsertMessage(ctx, inbox, unread("m1@example.com", 1))
	require.NoError(t, err)

	seen := unread("m1@example.com", 1)
	seen.Subject = "changed subject is ignored"
	seen.Flags = models.MessageFlags{Flags: []string{`\Seen`}, IsRead: true}

	res, err := m.UpsertMessage(ctx, inbox, seen)
	require.NoError(t, err)
	assert.True(t, res.Updated)

	stored := store.Messages("acct_1")
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsRead)
	assert.Equal(t, "Quarterly numbers", stored[0].Subject)
	assert.Len(t, notifier.newMail, 1)
}

func TestUpsertMessage_NotifiesOnlyForUnreadInbox(t *testing.T) {
	m, store, notifier := setup(t)
	ctx := context.Background()
	sent := folder(t, store, "Sent")
	inbox := folder(t, store, "INBOX")

	_, err := m.UpsertMessage(ctx, sent, unread("m1@example.com", 1))
	require.NoError(t, err)

	read := unread("m2@example.com", 2)
	read.Flags = models.MessageFlags{Flags: []string{`\Seen`}, IsRead: true}
	_, err = m.UpsertMessage(ctx, inbox, read)
	require.NoError(t, err)

	assert.Empty(t, notifier.newMail)
}

func TestUpsertMessage_SameIdAcrossFolders(t *testing.T) {
	m, store, _ := setup(t)
	ctx := context.Background()
	inbox := folder(t, store, "INBOX")
	archive := folder(t, store, "Archive")

	_, err := m.UpsertMessage(ctx, inbox, unread("m1@example.com", 1))
	require.NoError(t, err)
	res, err := m.UpsertMessage(ctx, archive, unread("m1@example.com", 9))
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Len(t, store.Messages("acct_1"), 1)
}

func TestNewMailSummary_Fallbacks(t *testing.T) {
	inbox := &models.Folder{AccountID: "acct_1", Path: "INBOX"}

	summary := newMailSummary(inbox, &models.Message{MessageID: "m1"})
	assert.Equal(t, "Unknown", summary.SenderDisplayName)
	assert.Equal(t, "No subject", summary.Subject)

	summary = newMailSummary(inbox, &models.Message{
		MessageID:    "m1",
		Participants: models.Participants{From: []models.Address{{Address: "bob@example.com"}}},
	})
	assert.Equal(t, "bob@example.com", summary.SenderDisplayName)
}
