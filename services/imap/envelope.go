package imap

import (
	"io"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/emersion/go-imap"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/mirror"
)

var referencesSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"References"},
	},
	Peek: true,
}

func syncFetchItems() []imap.FetchItem {
	return []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchRFC822Size,
		referencesSection.FetchItem(),
	}
}

// ParseMessage turns a fetched server message into a mirror envelope.
// Messages without an envelope or UID are rejected as malformed.
func ParseMessage(accountID, folder string, uidValidity uint32, msg *imap.Message) (*mirror.Envelope, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, errors.Wrap(mailsync_errors.ErrMalformedMessage, "missing envelope")
	}
	if msg.Uid == 0 {
		return nil, errors.Wrap(mailsync_errors.ErrMalformedMessage, "missing uid")
	}

	env := msg.Envelope
	messageID := utils.NormalizeMessageID(env.MessageId)
	if messageID == "" {
		messageID = utils.SyntheticMessageID(accountID, folder, uidValidity, msg.Uid)
	}

	out := &mirror.Envelope{
		MessageID:   messageID,
		UID:         msg.Uid,
		UIDValidity: uidValidity,
		Subject:     strings.TrimSpace(env.Subject),
		Size:        msg.Size,
		Flags:       parseFlags(msg.Flags),
		Participants: models.Participants{
			From:    convertAddresses(env.From),
			To:      convertAddresses(env.To),
			Cc:      convertAddresses(env.Cc),
			Bcc:     convertAddresses(env.Bcc),
			ReplyTo: convertAddresses(env.ReplyTo),
		},
		References: parseReferences(msg),
	}
	if !env.Date.IsZero() {
		date := env.Date.UTC()
		out.Date = &date
	}
	if refs := strings.Fields(env.InReplyTo); len(refs) > 0 {
		out.InReplyTo = utils.NormalizeMessageID(refs[0])
	}
	return out, nil
}

func parseFlags(flags []string) models.MessageFlags {
	out := models.MessageFlags{Flags: make([]string, 0, len(flags))}
	for _, flag := range flags {
		// \Recent is per session and would flap between syncs
		if strings.EqualFold(flag, imap.RecentFlag) {
			continue
		}
		out.Flags = append(out.Flags, flag)
		switch {
		case strings.EqualFold(flag, imap.SeenFlag):
			out.IsRead = true
		case strings.EqualFold(flag, imap.FlaggedFlag):
			out.IsFlagged = true
		case strings.EqualFold(flag, imap.DeletedFlag):
			out.IsDeleted = true
		}
	}
	return out
}

func convertAddresses(addresses []*imap.Address) []models.Address {
	if len(addresses) == 0 {
		return nil
	}
	result := make([]models.Address, 0, len(addresses))
	for _, addr := range addresses {
		if addr == nil || addr.MailboxName == "" {
			continue
		}
		raw := addr.Address()
		email := raw
		if validation := mailvalidate.ValidateEmailSyntax(raw); validation.IsValid {
			email = validation.CleanEmail
		}
		result = append(result, models.Address{
			Name:    strings.TrimSpace(addr.PersonalName),
			Address: email,
		})
	}
	return result
}

func parseReferences(msg *imap.Message) []string {
	for section, literal := range msg.Body {
		if section == nil || literal == nil || section.Specifier != imap.HeaderSpecifier {
			continue
		}
		raw, err := io.ReadAll(literal)
		if err != nil {
			return nil
		}
		return utils.ParseReferences(string(raw))
	}
	return nil
}

func flagsWith(flags []string, flag string) []string {
	if utils.ContainsFold(flags, flag) {
		return flags
	}
	return append(append([]string(nil), flags...), flag)
}
