package imap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository/memstore"
	"github.com/customeros/mailsync/services/mirror"
)

type plainSecrets struct{}

func (plainSecrets) Decrypt(value string) string { return value }

type countingNotifier struct {
	newMail int
}

func (n *countingNotifier) NotifyNewMail(context.Context, string, dto.NewMailSummary) { n.newMail++ }
func (n *countingNotifier) NotifySyncError(context.Context, string, error)            {}

type fixture struct {
	store    *memstore.Store
	session  *fakeSession
	dialer   *fakeDialer
	pool     *Pool
	notifier *countingNotifier
	service  *Service
}

func testClientConfig() ClientConfig {
	return ClientConfig{
		FolderLockTimeout: time.Second,
		StatusAttempts:    3,
		StatusRetryDelay:  time.Millisecond,
		MessageLimit:      100,
		Folders:           []string{"INBOX"},
	}
}

func newFixture(t *testing.T) *fixture {
	store := memstore.New()
	store.PutAccount(&models.MailboxAccount{
		ID:              "acct_1",
		UserID:          "user_1",
		Host:            "imap.example.com",
		Port:            993,
		UseTLS:          true,
		Address:         "ana@example.com",
		EncryptedSecret: "app-password",
		Active:          true,
		SyncEnabled:     true,
	})

	session := newFakeSession()
	session.subscribed = []string{"INBOX"}
	session.mailboxes = []*imap.MailboxInfo{
		{Name: "INBOX", Delimiter: "/"},
		{Name: "Sent", Delimiter: "/", Attributes: []string{`\Sent`}},
		{Name: "[Gmail]", Delimiter: "/", Attributes: []string{imap.NoSelectAttr}},
		{Name: "Archive", Delimiter: "/"},
	}
	session.statuses["INBOX"] = &imap.MailboxStatus{Name: "INBOX", UidValidity: 7}
	session.statuses["Sent"] = &imap.MailboxStatus{Name: "Sent", UidValidity: 8}
	session.statuses["Archive"] = &imap.MailboxStatus{Name: "Archive", UidValidity: 9}

	dialer := &fakeDialer{newSession: func() *fakeSession { return session }}
	pool := NewPool(testPoolConfig(), dialer, testLogger(), NewPoolMetrics(prometheus.NewRegistry()))
	notifier := &countingNotifier{}
	repos := store.Repositories()
	m := mirror.NewMirror(repos, notifier, testLogger())

	return &fixture{
		store:    store,
		session:  session,
		dialer:   dialer,
		pool:     pool,
		notifier: notifier,
		service:  NewService(testClientConfig(), pool, plainSecrets{}, m, repos, testLogger()),
	}
}

func (f *fixture) addInbox(msgs ...*imap.Message) {
	f.session.messages["INBOX"] = append(f.session.messages["INBOX"], msgs...)
	status := f.session.statuses["INBOX"]
	status.Messages = uint32(len(f.session.messages["INBOX"]))
	status.Unseen = 0
	for _, m := range f.session.messages["INBOX"] {
		if m != nil && !hasFlag(m.Flags, imap.SeenFlag) {
			status.Unseen++
		}
	}
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func serverMessage(uid uint32, messageID string, flags ...string) *imap.Message {
	return &imap.Message{
		Uid:   uid,
		Flags: flags,
		Size:  2048,
		Envelope: &imap.Envelope{
			Date:      time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC),
			Subject:   "Invoice " + messageID,
			MessageId: "<" + messageID + ">",
			From:      []*imap.Address{{PersonalName: "Ana", MailboxName: "ana", HostName: "example.com"}},
			To:        []*imap.Address{{MailboxName: "bob", HostName: "example.org"}},
		},
	}
}

func (f *fixture) connected(t *testing.T) *Client {
	client := f.service.NewClient("acct_1").(*Client)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Disconnect)
	return client
}

func TestClient_ListAndUpsertFolders(t *testing.T) {
	f := newFixture(t)
	client := f.connected(t)
	ctx := context.Background()

	paths, err := client.ListAndUpsertFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Archive", "INBOX", "Sent"}, paths)

	folders, err := f.store.Repositories().FolderRepository.ListByAccount(ctx, "acct_1")
	require.NoError(t, err)
	require.Len(t, folders, 3)

	byPath := map[string]*models.Folder{}
	for _, folder := range folders {
		byPath[folder.Path] = folder
	}
	assert.True(t, byPath["INBOX"].Subscribed)
	assert.Equal(t, enum.SpecialUseInbox.String(), byPath["INBOX"].SpecialUse)
	assert.Equal(t, enum.SpecialUseSent.String(), byPath["Sent"].SpecialUse)
	assert.Equal(t, enum.SpecialUseArchive.String(), byPath["Archive"].SpecialUse, "inferred from name")
	assert.False(t, byPath["Sent"].Subscribed)
}

func TestClient_SyncMessagesWindowAndCounters(t *testing.T) {
	f := newFixture(t)
	f.addInbox(
		serverMessage(10, "m10@example.com", imap.SeenFlag),
		serverMessage(11, "m11@example.com"),
		serverMessage(12, "m12@example.com"),
	)
	client := f.connected(t)
	ctx := context.Background()
	_, err := client.ListAndUpsertFolders(ctx)
	require.NoError(t, err)

	res, err := client.SyncMessages(ctx, "INBOX", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, uint32(3), res.Total)
	assert.Equal(t, uint32(2), res.Unseen)

	inbox, err := f.store.Repositories().FolderRepository.GetByPath(ctx, "acct_1", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, 3, inbox.TotalMessages)
	assert.Equal(t, 2, inbox.UnreadMessages)

	stored := f.store.Messages("acct_1")
	require.Len(t, stored, 2)
	assert.Equal(t, "m11@example.com", stored[0].MessageID)
	assert.Equal(t, "ana@example.com", stored[0].Participants.Sender().Address)
	assert.Equal(t, 2, f.notifier.newMail)

	// second pass changes nothing but flags
	f.session.messages["INBOX"][2].Flags = []string{imap.SeenFlag}
	res, err = client.SyncMessages(ctx, "INBOX", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, f.store.Messages("acct_1"), 2)
	assert.Equal(t, 2, f.notifier.newMail)
}

func TestClient_SyncMessagesEmptyFolderSkipsSelect(t *testing.T) {
	f := newFixture(t)
	client := f.connected(t)
	ctx := context.Background()
	_, err := client.ListAndUpsertFolders(ctx)
	require.NoError(t, err)

	res, err := client.SyncMessages(ctx, "Sent", 100)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fetched)
	assert.Equal(t, 0, f.session.selects)
}

func TestClient_SyncMessagesSkipsMalformedAndSynthesizesIds(t *testing.T) {
	f := newFixture(t)
	noID := serverMessage(21, "")
	noID.Envelope.MessageId = ""
	f.addInbox(serverMessage(20, "m20@example.com"), noID)
	f.session.messages["INBOX"] = append(f.session.messages["INBOX"], &imap.Message{Uid: 22})
	f.session.statuses["INBOX"].Messages = 3

	client := f.connected(t)
	ctx := context.Background()
	_, err := client.ListAndUpsertFolders(ctx)
	require.NoError(t, err)

	res, err := client.SyncMessages(ctx, "INBOX", 100)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped)

	stored := f.store.Messages("acct_1")
	require.Len(t, stored, 2)
	assert.Contains(t, stored[1].MessageID, "INBOX.7.21@acct_1")
}

func TestClient_StatusIsRetried(t *testing.T) {
	f := newFixture(t)
	f.session.statusErrs = []error{errors.New("BAD"), errors.New("BAD")}
	client := f.connected(t)

	status, err := client.FolderStatus(context.Background(), "Sent")
	require.NoError(t, err)
	assert.Equal(t, uint32(8), status.UidValidity)

	f.session.statusErrs = []error{errors.New("1"), errors.New("2"), errors.New("3")}
	_, err = client.FolderStatus(context.Background(), "Sent")
	assert.Error(t, err)
}

func TestClient_FolderLockTimeout(t *testing.T) {
	f := newFixture(t)
	client := f.connected(t)
	client.cfg.FolderLockTimeout = 20 * time.Millisecond

	release, err := client.session.lockFolder(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = client.FolderStatus(context.Background(), "INBOX")
	assert.ErrorIs(t, err, mailsync_errors.ErrFolderLockTimeout)
}

func TestClient_FetchBodyAndMarkRead(t *testing.T) {
	f := newFixture(t)
	f.addInbox(serverMessage(30, "m30@example.com"))
	f.session.rawBodies[30] = "From: ana@example.com\r\n" +
		"To: bob@example.org\r\n" +
		"Subject: Invoice\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Please find the invoice attached.\r\n"

	client := f.connected(t)
	ctx := context.Background()
	_, err := client.ListAndUpsertFolders(ctx)
	require.NoError(t, err)
	_, err = client.SyncMessages(ctx, "INBOX", 100)
	require.NoError(t, err)

	body, err := client.FetchBody(ctx, "m30@example.com")
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Contains(t, body.Text, "Please find the invoice attached.")
	assert.Contains(t, f.store.Messages("acct_1")[0].TextContent, "invoice attached")

	ok, err := client.MarkRead(ctx, "m30@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uint32{30}, f.session.stored)
	assert.True(t, f.store.Messages("acct_1")[0].IsRead)

	missing, err := client.FetchBody(ctx, "nope@example.com")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	ok, err = client.MarkRead(ctx, "nope@example.com")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ConnectRejectsBadConfig(t *testing.T) {
	f := newFixture(t)
	f.store.PutAccount(&models.MailboxAccount{ID: "acct_2", Host: "imap.example.com", Port: 0, Address: "x@example.com", EncryptedSecret: "pw"})
	f.store.PutAccount(&models.MailboxAccount{ID: "acct_3", Host: "imap.example.com", Port: 993, Address: "x@example.com", EncryptedSecret: "$2a$10$abcdefghijklmnopqrstuuvwxyz0123456789abcdefghijklmnop"})

	err := f.service.NewClient("acct_2").Connect(context.Background())
	assert.ErrorIs(t, err, mailsync_errors.ErrInvalidAccountConfig)

	err = f.service.NewClient("acct_3").Connect(context.Background())
	assert.ErrorIs(t, err, mailsync_errors.ErrInvalidAccountConfig)

	err = f.service.NewClient("acct_missing").Connect(context.Background())
	assert.ErrorIs(t, err, mailsync_errors.ErrAccountNotFound)

	assert.Equal(t, 0, f.dialer.dialCount())
}

func TestClient_OperationsRequireConnect(t *testing.T) {
	f := newFixture(t)
	client := f.service.NewClient("acct_1")

	_, err := client.ListAndUpsertFolders(context.Background())
	assert.ErrorIs(t, err, mailsync_errors.ErrNotConnected)
}

func TestService_SyncAccount(t *testing.T) {
	f := newFixture(t)
	f.addInbox(serverMessage(1, "a@example.com"), serverMessage(2, "b@example.com"))
	f.service.cfg.Folders = []string{"inbox", "Missing"}

	res, err := f.service.SyncAccount(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.MessagesProcessed())
	assert.Len(t, res.Folders, 3)

	// the session went back to the pool
	assert.Equal(t, 1, f.pool.Stats().Accounts["acct_1"].Idle)
}
