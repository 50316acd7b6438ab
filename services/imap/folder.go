package imap

import (
	"context"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// ListAndUpsertFolders mirrors the server folder list and returns the remote paths.
// Counters are never written here.
func (c *Client) ListAndUpsertFolders(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.ListAndUpsertFolders")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, c.accountID)

	session, release, err := c.lockFolder(ctx, "*")
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer release()

	mailboxes, err := collectMailboxes(func(ch chan *imap.MailboxInfo) error {
		return session.List("", "*", ch)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "[%s] error listing folders", c.accountID)
	}

	subscribed := make(map[string]bool)
	lsub, err := collectMailboxes(func(ch chan *imap.MailboxInfo) error {
		return session.Lsub("", "*", ch)
	})
	if err != nil {
		c.log.Warnf("[%s] error listing subscribed folders: %v", c.accountID, err)
	}
	for _, m := range lsub {
		subscribed[m.Name] = true
	}

	advertisesSpecialUse, _ := session.Support("SPECIAL-USE")

	var paths []string
	for _, m := range mailboxes {
		if m == nil || m.Name == "" || utils.ContainsFold(m.Attributes, imap.NoSelectAttr) {
			continue
		}

		specialUse := enum.SpecialUseFromAttributes(m.Attributes)
		if specialUse == enum.SpecialUseNone && (!advertisesSpecialUse || strings.EqualFold(m.Name, "INBOX")) {
			specialUse = enum.SpecialUseFromName(m.Name, m.Delimiter)
		}

		_, err := c.repos.FolderRepository.Upsert(ctx, &models.Folder{
			AccountID:  c.accountID,
			Path:       m.Name,
			Name:       folderName(m.Name, m.Delimiter),
			Delimiter:  m.Delimiter,
			SpecialUse: specialUse.String(),
			Subscribed: subscribed[m.Name],
		})
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrapf(err, "[%s][%s] failed to store folder", c.accountID, m.Name)
		}
		paths = append(paths, m.Name)
	}

	sort.Strings(paths)
	span.SetTag("folders.count", len(paths))
	c.log.Infof("[%s] found %d folders", c.accountID, len(paths))
	return paths, nil
}

func folderName(path, delimiter string) string {
	if delimiter == "" {
		return path
	}
	if idx := strings.LastIndex(path, delimiter); idx >= 0 && idx+len(delimiter) < len(path) {
		return path[idx+len(delimiter):]
	}
	return path
}
