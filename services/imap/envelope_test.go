package imap

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailsync_errors "github.com/customeros/mailsync/errors"
)

func TestParseMessage(t *testing.T) {
	msg := &imap.Message{
		Uid:   42,
		Size:  512,
		Flags: []string{imap.SeenFlag, imap.RecentFlag, imap.FlaggedFlag},
		Envelope: &imap.Envelope{
			Date:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)),
			Subject:   "  Re: plans  ",
			MessageId: "<abc@mail.example.com>",
			InReplyTo: "<parent@mail.example.com>",
			From:      []*imap.Address{{PersonalName: "Ana", MailboxName: "Ana", HostName: "Example.com"}},
			Cc:        []*imap.Address{{MailboxName: "team", HostName: "example.com"}},
		},
		Body: map[*imap.BodySectionName]imap.Literal{
			referencesSection: bytes.NewBufferString("References: <root@mail.example.com>\r\n <parent@mail.example.com>\r\n\r\n"),
		},
	}

	env, err := ParseMessage("acct_1", "INBOX", 7, msg)
	require.NoError(t, err)

	assert.Equal(t, "abc@mail.example.com", env.MessageID)
	assert.Equal(t, "Re: plans", env.Subject)
	assert.Equal(t, uint32(42), env.UID)
	assert.Equal(t, uint32(7), env.UIDValidity)
	assert.Equal(t, "parent@mail.example.com", env.InReplyTo)
	assert.Equal(t, []string{"root@mail.example.com", "parent@mail.example.com"}, env.References)
	assert.True(t, env.Flags.IsRead)
	assert.True(t, env.Flags.IsFlagged)
	assert.False(t, env.Flags.IsDeleted)
	assert.NotContains(t, env.Flags.Flags, imap.RecentFlag)
	require.NotNil(t, env.Date)
	assert.Equal(t, time.UTC, env.Date.Location())
	require.Len(t, env.Participants.From, 1)
	assert.Equal(t, "Ana", env.Participants.From[0].Name)
	require.Len(t, env.Participants.Cc, 1)
	assert.Equal(t, "team@example.com", env.Participants.Cc[0].Address)
}

func TestParseMessage_SyntheticId(t *testing.T) {
	msg := &imap.Message{Uid: 5, Envelope: &imap.Envelope{Subject: "no id"}}

	first, err := ParseMessage("acct_1", "Sent Items", 3, msg)
	require.NoError(t, err)
	second, err := ParseMessage("acct_1", "Sent Items", 3, msg)
	require.NoError(t, err)

	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Equal(t, "Sent_Items.3.5@acct_1.mailsync", first.MessageID)
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := ParseMessage("acct_1", "INBOX", 1, &imap.Message{Uid: 1})
	assert.ErrorIs(t, err, mailsync_errors.ErrMalformedMessage)

	_, err = ParseMessage("acct_1", "INBOX", 1, &imap.Message{Envelope: &imap.Envelope{}})
	assert.ErrorIs(t, err, mailsync_errors.ErrMalformedMessage)

	_, err = ParseMessage("acct_1", "INBOX", 1, nil)
	assert.ErrorIs(t, err, mailsync_errors.ErrMalformedMessage)
}
