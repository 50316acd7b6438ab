package mirror

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	unknownSender    = "Unknown"
	defaultSubject   = "No subject"
	maxSubjectLength = 1000
)

type UpsertResult struct {
	Message *models.Message
	Created bool
	Updated bool
}

// Mirror writes server messages into the store, one row per (account, message id).
type Mirror struct {
	repos    *repository.Repositories
	notifier interfaces.Notifier
	log      logger.Logger
}

func NewMirror(repos *repository.Repositories, notifier interfaces.Notifier, log logger.Logger) *Mirror {
	return &Mirror{repos: repos, notifier: notifier, log: log}
}

// UpsertMessage inserts the message once and afterwards only reconciles its flags.
// A newly inserted unread INBOX message triggers exactly one new-mail notification.
func (m *Mirror) UpsertMessage(ctx context.Context, folder *models.Folder, env *Envelope) (*UpsertResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Mirror.UpsertMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, folder.AccountID)
	tracing.TagFolder(span, folder.Path)
	span.SetTag("message_id", env.MessageID)

	if env.MessageID == "" {
		return nil, errors.New("envelope without message id")
	}

	existing, err := m.repos.MessageRepository.GetByMessageID(ctx, folder.AccountID, env.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to look up message")
	}
	if existing != nil {
		return m.reconcileFlags(ctx, existing, env.Flags)
	}

	message := env.toMessage(folder)
	message.Subject = utils.Truncate(message.Subject, maxSubjectLength)

	created, err := m.repos.MessageRepository.Create(ctx, message)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create message")
	}
	if !created {
		// another writer inserted it between the lookup and the insert
		existing, err = m.repos.MessageRepository.GetByMessageID(ctx, folder.AccountID, env.MessageID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, "failed to re-read message")
		}
		if existing == nil {
			return nil, errors.Errorf("message %s vanished after conflicting insert", env.MessageID)
		}
		return m.reconcileFlags(ctx, existing, env.Flags)
	}

	if err := m.repos.ProcessedMessageRepository.Append(ctx, folder.AccountID, message.MessageID, folder.Path); err != nil {
		m.log.Warnf("[%s][%s] failed to record processed message %s: %v", folder.AccountID, folder.Path, message.MessageID, err)
	}

	if !message.IsRead && folder.IsInbox() && m.notifier != nil {
		m.notifier.NotifyNewMail(ctx, folder.AccountID, newMailSummary(folder, message))
	}

	span.SetTag("created", true)
	return &UpsertResult{Message: message, Created: true}, nil
}

func (m *Mirror) reconcileFlags(ctx context.Context, existing *models.Message, flags models.MessageFlags) (*UpsertResult, error) {
	if existing.CurrentFlags().Equal(flags) {
		return &UpsertResult{Message: existing}, nil
	}

	if err := m.repos.MessageRepository.UpdateFlags(ctx, existing.ID, flags); err != nil {
		return nil, errors.Wrap(err, "failed to update message flags")
	}

	existing.Flags = flags.Flags
	existing.IsRead = flags.IsRead
	existing.IsFlagged = flags.IsFlagged
	existing.IsDeleted = flags.IsDeleted
	return &UpsertResult{Message: existing, Updated: true}, nil
}

func newMailSummary(folder *models.Folder, message *models.Message) dto.NewMailSummary {
	sender := unknownSender
	if from := message.Participants.Sender(); from != nil {
		sender = utils.FirstNonEmpty(from.Name, from.Address, unknownSender)
	}
	return dto.NewMailSummary{
		Type:              enum.NotificationNewEmail,
		SenderDisplayName: sender,
		Subject:           utils.FirstNonEmpty(message.Subject, defaultSubject),
		Folder:            folder.Path,
		MessageID:         message.MessageID,
		Count:             1,
	}
}
