package imap

import (
	"context"
	"time"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

var statusItems = []imap.StatusItem{
	imap.StatusMessages,
	imap.StatusUnseen,
	imap.StatusUidNext,
	imap.StatusUidValidity,
}

// SyncMessages mirrors the newest limit messages of a folder and refreshes its counters.
func (c *Client) SyncMessages(ctx context.Context, folderPath string, limit int) (*interfaces.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.SyncMessages")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, c.accountID)
	tracing.TagFolder(span, folderPath)

	if limit <= 0 {
		limit = c.cfg.MessageLimit
	}

	folder, err := c.repos.FolderRepository.GetByPath(ctx, c.accountID, folderPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] failed to load folder", c.accountID, folderPath)
	}
	if folder == nil {
		return nil, errors.Wrapf(mailsync_errors.ErrFolderNotFound, "[%s][%s]", c.accountID, folderPath)
	}

	session, release, err := c.lockFolder(ctx, folderPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer release()

	status, err := c.statusWithRetry(ctx, session, folderPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := c.repos.FolderRepository.UpdateCounters(ctx, folder.ID, int(status.Messages), int(status.Unseen)); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] failed to update folder counters", c.accountID, folderPath)
	}

	result := &interfaces.SyncResult{
		Folder: folderPath,
		Total:  status.Messages,
		Unseen: status.Unseen,
	}
	if status.Messages == 0 {
		return result, nil
	}

	mbox, err := session.Select(folderPath, true)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] error selecting folder", c.accountID, folderPath)
	}
	total := mbox.Messages
	if total == 0 {
		return result, nil
	}

	from := uint32(1)
	if total > uint32(limit) {
		from = total - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, total)

	messages, err := collectMessages(func(ch chan *imap.Message) error {
		return session.Fetch(seqset, syncFetchItems(), ch)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s][%s] error fetching messages %d:%d", c.accountID, folderPath, from, total)
	}

	uidValidity := mbox.UidValidity
	if uidValidity == 0 {
		uidValidity = status.UidValidity
	}

	for _, msg := range messages {
		result.Fetched++

		env, err := ParseMessage(c.accountID, folderPath, uidValidity, msg)
		if err != nil {
			c.log.Warnf("[%s][%s] skipping message: %v", c.accountID, folderPath, err)
			result.Skipped++
			continue
		}

		res, err := c.mirror.UpsertMessage(ctx, folder, env)
		if err != nil {
			tracing.TraceErr(span, err)
			return result, errors.Wrapf(err, "[%s][%s] failed to store message %s", c.accountID, folderPath, env.MessageID)
		}
		switch {
		case res.Created:
			result.Created++
		case res.Updated:
			result.Updated++
		}
	}

	span.SetTag("messages.fetched", result.Fetched)
	span.SetTag("messages.created", result.Created)
	c.log.Infof("[%s][%s] synced %d messages (%d new, %d updated, %d skipped)",
		c.accountID, folderPath, result.Fetched, result.Created, result.Updated, result.Skipped)
	return result, nil
}

// FolderStatus reads the server counters of a folder without selecting it.
func (c *Client) FolderStatus(ctx context.Context, folderPath string) (*interfaces.FolderStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.FolderStatus")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, c.accountID)
	tracing.TagFolder(span, folderPath)

	session, release, err := c.lockFolder(ctx, folderPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer release()

	status, err := c.statusWithRetry(ctx, session, folderPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return status, nil
}

func (c *Client) statusWithRetry(ctx context.Context, session Session, folderPath string) (*interfaces.FolderStatus, error) {
	attempts := c.cfg.StatusAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		mbox, err := session.Status(folderPath, statusItems)
		if err == nil {
			return &interfaces.FolderStatus{
				Messages:    mbox.Messages,
				Unseen:      mbox.Unseen,
				UidNext:     mbox.UidNext,
				UidValidity: mbox.UidValidity,
			}, nil
		}
		lastErr = err
		c.log.Warnf("[%s][%s] STATUS attempt %d/%d failed: %v", c.accountID, folderPath, attempt, attempts, err)

		if attempt < attempts {
			select {
			case <-time.After(c.cfg.StatusRetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "[%s][%s] STATUS failed", c.accountID, folderPath)
}
