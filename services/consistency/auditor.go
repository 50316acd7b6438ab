package consistency

import (
	"context"
	"fmt"
	"sort"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
)

type Config struct {
	ResyncLimit         int  `env:"CONSISTENCY_RESYNC_LIMIT" envDefault:"100"`
	PruneRemovedFolders bool `env:"CONSISTENCY_PRUNE_REMOVED_FOLDERS" envDefault:"false"`
}

// resyncTarget is a folder queued for repair together with the server's
// message count at check time.
type resyncTarget struct {
	folder      *models.Folder
	remoteTotal int
}

// Auditor compares local folder counters with the server and repairs drift.
type Auditor struct {
	cfg     Config
	clients interfaces.MailClientFactory
	repos   *repository.Repositories
	log     logger.Logger
}

func NewAuditor(cfg Config, clients interfaces.MailClientFactory, repos *repository.Repositories, log logger.Logger) *Auditor {
	if cfg.ResyncLimit <= 0 {
		cfg.ResyncLimit = 100
	}
	return &Auditor{cfg: cfg, clients: clients, repos: repos, log: log}
}

func (a *Auditor) CheckConsistency(ctx context.Context, accountID string) (*interfaces.ConsistencyReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Auditor.CheckConsistency")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	client := a.clients.NewClient(accountID)
	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer client.Disconnect()

	report, _, err := a.check(ctx, client, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.LogObjectAsJson(span, "report", report)
	return report, nil
}

func (a *Auditor) FixInconsistencies(ctx context.Context, accountID string) (*interfaces.FixResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Auditor.FixInconsistencies")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	client := a.clients.NewClient(accountID)
	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer client.Disconnect()

	report, queue, err := a.check(ctx, client, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return a.fix(ctx, client, accountID, report, queue), nil
}

// MaintainConsistency runs one check and repairs what that check queued.
func (a *Auditor) MaintainConsistency(ctx context.Context, accountID string) (*interfaces.MaintenanceResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Auditor.MaintainConsistency")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	client := a.clients.NewClient(accountID)
	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		return &interfaces.MaintenanceResult{Error: err.Error()}, err
	}
	defer client.Disconnect()

	report, queue, err := a.check(ctx, client, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return &interfaces.MaintenanceResult{Error: err.Error()}, err
	}

	fixes := a.fix(ctx, client, accountID, report, queue)
	result := &interfaces.MaintenanceResult{
		Success: len(report.Errors) == 0 && len(fixes.Errors) == 0,
		Report:  report,
		Fixes:   fixes,
	}
	if !result.Success {
		result.Error = fmt.Sprintf("%d check errors, %d fix errors", len(report.Errors), len(fixes.Errors))
	}

	if report.IsConsistent() {
		a.log.Debugf("[%s] folders consistent", accountID)
	} else {
		a.log.Infof("[%s] consistency maintenance: %d inconsistent, %d fixed, %d resynced, %d orphans removed",
			accountID, len(report.Inconsistent), fixes.FoldersFixed, fixes.MessagesResynced, fixes.OrphansRemoved)
	}
	return result, nil
}

// MaintainAll runs maintenance for every syncable account; one account failing does not stop the rest.
func (a *Auditor) MaintainAll(ctx context.Context) map[string]*interfaces.MaintenanceResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Auditor.MaintainAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	results := make(map[string]*interfaces.MaintenanceResult)

	accounts, err := a.repos.MailboxAccountRepository.ListSyncable(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		a.log.Errorf("failed to list syncable accounts: %v", err)
		return results
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		result, err := a.MaintainConsistency(ctx, account.ID)
		if err != nil {
			a.log.Errorf("[%s] consistency maintenance failed: %v", account.ID, err)
		}
		results[account.ID] = result
	}
	span.SetTag("accounts", len(results))
	return results
}

func (a *Auditor) check(ctx context.Context, client interfaces.MailClient, accountID string) (*interfaces.ConsistencyReport, []resyncTarget, error) {
	before, err := a.repos.FolderRepository.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list local folders")
	}
	known := make(map[string]bool, len(before))
	for _, f := range before {
		known[f.Path] = true
	}

	remote, err := client.ListAndUpsertFolders(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list remote folders")
	}
	remoteSet := make(map[string]bool, len(remote))
	report := &interfaces.ConsistencyReport{
		AccountID:     accountID,
		FoldersRemote: len(remote),
		MissingLocal:  []string{},
		MissingRemote: []string{},
		Inconsistent:  []interfaces.FolderInconsistency{},
		Errors:        []string{},
	}
	for _, path := range remote {
		remoteSet[path] = true
		if !known[path] {
			report.MissingLocal = append(report.MissingLocal, path)
		}
	}

	local, err := a.repos.FolderRepository.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list local folders")
	}
	report.FoldersLocal = len(local)

	var queue []resyncTarget
	for _, folder := range local {
		if !remoteSet[folder.Path] {
			report.MissingRemote = append(report.MissingRemote, folder.Path)
			continue
		}

		status, err := client.FolderStatus(ctx, folder.Path)
		if err != nil {
			a.log.Warnf("[%s][%s] status failed during consistency check: %v", accountID, folder.Path, err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", folder.Path, err))
			continue
		}

		remoteTotal, remoteUnread := int(status.Messages), int(status.Unseen)
		if folder.TotalMessages == remoteTotal && folder.UnreadMessages == remoteUnread {
			continue
		}

		report.Inconsistent = append(report.Inconsistent, interfaces.FolderInconsistency{
			FolderID:     folder.ID,
			Path:         folder.Path,
			LocalTotal:   folder.TotalMessages,
			RemoteTotal:  remoteTotal,
			LocalUnread:  folder.UnreadMessages,
			RemoteUnread: remoteUnread,
		})
		if err := a.repos.FolderRepository.UpdateCounters(ctx, folder.ID, remoteTotal, remoteUnread); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", folder.Path, err))
		}
		queue = append(queue, resyncTarget{folder: folder, remoteTotal: remoteTotal})
	}

	sort.Strings(report.MissingRemote)
	return report, queue, nil
}

func (a *Auditor) fix(ctx context.Context, client interfaces.MailClient, accountID string, report *interfaces.ConsistencyReport, queue []resyncTarget) *interfaces.FixResult {
	result := &interfaces.FixResult{Errors: []string{}}

	for _, target := range queue {
		folder := target.folder
		res, err := client.SyncMessages(ctx, folder.Path, a.cfg.ResyncLimit)
		if err != nil {
			a.log.Warnf("[%s][%s] resync failed: %v", accountID, folder.Path, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", folder.Path, err))
			continue
		}
		result.MessagesResynced += res.Fetched

		// the window only holds the whole folder up to the limit; past that the
		// store undercounts and the counters written by the check stay
		if target.remoteTotal > a.cfg.ResyncLimit {
			a.log.Debugf("[%s][%s] folder larger than resync window (%d > %d), keeping server counters",
				accountID, folder.Path, target.remoteTotal, a.cfg.ResyncLimit)
			result.FoldersFixed++
			continue
		}
		if err := a.recount(ctx, folder); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", folder.Path, err))
			continue
		}
		result.FoldersFixed++
	}

	if a.cfg.PruneRemovedFolders {
		for _, path := range report.MissingRemote {
			folder, err := a.repos.FolderRepository.GetByPath(ctx, accountID, path)
			if err != nil || folder == nil {
				continue
			}
			if err := a.repos.FolderRepository.Delete(ctx, folder.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			a.log.Infof("[%s][%s] pruned folder removed on server", accountID, path)
			result.FoldersPruned++
		}
	}

	removed, err := a.repos.MessageRepository.DeleteOrphans(ctx, accountID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("orphans: %v", err))
	}
	result.OrphansRemoved = removed

	return result
}

func (a *Auditor) recount(ctx context.Context, folder *models.Folder) error {
	total, err := a.repos.MessageRepository.CountByFolder(ctx, folder.ID, false)
	if err != nil {
		return errors.Wrap(err, "failed to count messages")
	}
	unread, err := a.repos.MessageRepository.CountByFolder(ctx, folder.ID, true)
	if err != nil {
		return errors.Wrap(err, "failed to count unread messages")
	}
	return a.repos.FolderRepository.UpdateCounters(ctx, folder.ID, int(total), int(unread))
}

var _ interfaces.ConsistencyAuditor = (*Auditor)(nil)
