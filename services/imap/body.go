package imap

import (
	"context"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// FetchBody downloads, parses and stores the body of a mirrored message.
// An unknown message yields nil without error.
func (c *Client) FetchBody(ctx context.Context, messageID string) (*interfaces.MessageBody, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.FetchBody")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, c.accountID)
	span.SetTag("message_id", messageID)

	message, folder, err := c.locate(ctx, messageID)
	if err != nil || message == nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	session, release, err := c.lockFolder(ctx, folder.Path)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer release()

	if _, err := session.Select(folder.Path, true); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] error selecting folder", c.accountID, folder.Path)
	}

	section := &imap.BodySectionName{Peek: true}
	seqset := new(imap.SeqSet)
	seqset.AddNum(message.UID)

	fetched, err := collectMessages(func(ch chan *imap.Message) error {
		return session.UidFetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, ch)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] error fetching body of uid %d", c.accountID, folder.Path, message.UID)
	}

	var literal imap.Literal
	for _, msg := range fetched {
		for _, l := range msg.Body {
			if l != nil {
				literal = l
				break
			}
		}
	}
	if literal == nil {
		return nil, errors.Wrapf(mailsync_errors.ErrMalformedMessage, "[%s][%s] uid %d returned no body", c.accountID, folder.Path, message.UID)
	}

	parsed, err := enmime.ReadEnvelope(literal)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] failed to parse body of uid %d", c.accountID, folder.Path, message.UID)
	}

	body := &interfaces.MessageBody{Text: parsed.Text, HTML: parsed.HTML}
	if err := c.repos.MessageRepository.UpdateBody(ctx, message.ID, body.Text, body.HTML); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to store message body")
	}
	return body, nil
}

// MarkRead sets \Seen on the server and in the store. It reports false for unknown messages.
func (c *Client) MarkRead(ctx context.Context, messageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.MarkRead")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, c.accountID)
	span.SetTag("message_id", messageID)

	message, folder, err := c.locate(ctx, messageID)
	if err != nil || message == nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	session, release, err := c.lockFolder(ctx, folder.Path)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	defer release()

	if _, err := session.Select(folder.Path, false); err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrapf(err, "[%s][%s] error selecting folder", c.accountID, folder.Path)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(message.UID)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := session.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrapf(err, "[%s][%s] error marking uid %d as read", c.accountID, folder.Path, message.UID)
	}

	flags := message.CurrentFlags()
	flags.Flags = flagsWith(flags.Flags, imap.SeenFlag)
	flags.IsRead = true
	if err := c.repos.MessageRepository.UpdateFlags(ctx, message.ID, flags); err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(err, "failed to store read flag")
	}
	return true, nil
}

func (c *Client) locate(ctx context.Context, messageID string) (*models.Message, *models.Folder, error) {
	message, err := c.repos.MessageRepository.GetByMessageID(ctx, c.accountID, messageID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load message")
	}
	if message == nil {
		return nil, nil, nil
	}
	folder, err := c.repos.FolderRepository.GetByID(ctx, message.FolderID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load folder")
	}
	if folder == nil {
		return nil, nil, errors.Wrapf(mailsync_errors.ErrFolderNotFound, "[%s] message %s", c.accountID, messageID)
	}
	return message, folder, nil
}
