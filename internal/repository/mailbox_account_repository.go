package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type mailboxAccountRepository struct {
	db *gorm.DB
}

func NewMailboxAccountRepository(db *gorm.DB) interfaces.MailboxAccountRepository {
	return &mailboxAccountRepository{db: db}
}

// Ping runs a trivial query to prove the store is reachable.
func (r *mailboxAccountRepository) Ping(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxAccountRepository.Ping")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if err := r.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (r *mailboxAccountRepository) GetByID(ctx context.Context, id string) (*models.MailboxAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxAccountRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	var account models.MailboxAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get mailbox account: %w", err)
	}
	return &account, nil
}

// ListSyncable returns accounts that are active and have sync enabled.
func (r *mailboxAccountRepository) ListSyncable(ctx context.Context) ([]*models.MailboxAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxAccountRepository.ListSyncable")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var accounts []*models.MailboxAccount
	err := r.db.WithContext(ctx).
		Where("active = ? AND sync_enabled = ?", true, true).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list syncable accounts: %w", err)
	}

	span.SetTag("accounts.count", len(accounts))
	return accounts, nil
}

func (r *mailboxAccountRepository) UpdateLastSync(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxAccountRepository.UpdateLastSync")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.MailboxAccount{}).
		Where("id = ?", id).
		UpdateColumn("last_sync_at", at).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}
