package imap

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
)

// Service builds per-account clients and runs full account syncs.
type Service struct {
	cfg     ClientConfig
	pool    *Pool
	secrets SecretDecrypter
	mirror  MessageMirror
	repos   *repository.Repositories
	log     logger.Logger
}

func NewService(cfg ClientConfig, pool *Pool, secrets SecretDecrypter, mirror MessageMirror, repos *repository.Repositories, log logger.Logger) *Service {
	if len(cfg.Folders) == 0 {
		cfg.Folders = []string{"INBOX"}
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 100
	}
	return &Service{
		cfg:     cfg,
		pool:    pool,
		secrets: secrets,
		mirror:  mirror,
		repos:   repos,
		log:     log,
	}
}

func (s *Service) NewClient(accountID string) interfaces.MailClient {
	return NewClient(accountID, s.cfg, s.pool, s.secrets, s.mirror, s.repos, s.log)
}

// SyncAccount lists folders and syncs every configured folder. A folder
// failure fails the sync only after the remaining folders were attempted.
func (s *Service) SyncAccount(ctx context.Context, accountID string) (*interfaces.AccountSyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.SyncAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	start := time.Now()
	result := &interfaces.AccountSyncResult{AccountID: accountID}

	client := s.NewClient(accountID)
	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	defer client.Disconnect()

	remote, err := client.ListAndUpsertFolders(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	result.Folders = remote

	var failed []string
	var firstErr error
	for _, wanted := range s.cfg.Folders {
		path, ok := matchFolder(remote, wanted)
		if !ok {
			s.log.Warnf("[%s][%s] configured folder not present on server", accountID, wanted)
			continue
		}

		res, err := client.SyncMessages(ctx, path, s.cfg.MessageLimit)
		if res != nil {
			result.Results = append(result.Results, res)
		}
		if err != nil {
			s.log.Errorf("[%s][%s] folder sync failed: %v", accountID, path, err)
			failed = append(failed, path)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	result.Duration = time.Since(start)
	span.SetTag("messages.processed", result.MessagesProcessed())
	if firstErr != nil {
		tracing.TraceErr(span, firstErr)
		return result, errors.Wrapf(firstErr, "sync failed for folders %s", strings.Join(failed, ", "))
	}
	return result, nil
}

func matchFolder(remote []string, wanted string) (string, bool) {
	for _, path := range remote {
		if path == wanted {
			return path, true
		}
	}
	for _, path := range remote {
		if strings.EqualFold(path, wanted) {
			return path, true
		}
	}
	return "", false
}

var (
	_ interfaces.MailClientFactory = (*Service)(nil)
	_ interfaces.AccountSyncer     = (*Service)(nil)
)
