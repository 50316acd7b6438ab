package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByMessageID(ctx context.Context, accountID, messageID string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByMessageID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	span.SetTag("message_id", messageID)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// Create relies on the (account_id, message_id) unique index; a lost race reports created=false.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, message.AccountID)

	if message.AccountID == "" || message.MessageID == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return false, ErrInvalidInput
	}

	now := utils.Now()
	message.CreatedAt = now
	message.UpdatedAt = now

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(message)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, fmt.Errorf("failed to create message: %w", result.Error)
	}

	created := result.RowsAffected > 0
	span.SetTag("created", created)
	return created, nil
}

func (r *messageRepository) UpdateFlags(ctx context.Context, id string, flags models.MessageFlags) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UpdateFlags")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"flags":      pq.StringArray(flags.Flags),
			"is_read":    flags.IsRead,
			"is_flagged": flags.IsFlagged,
			"is_deleted": flags.IsDeleted,
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update message flags: %w", err)
	}
	return nil
}

func (r *messageRepository) UpdateBody(ctx context.Context, id string, text, html string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UpdateBody")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"text_content": text,
			"html_content": html,
			"updated_at":   utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update message body: %w", err)
	}
	return nil
}

// CountByFolder counts non-deleted messages of a folder.
func (r *messageRepository) CountByFolder(ctx context.Context, folderID string, unreadOnly bool) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByFolder")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, folderID)

	query := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("folder_id = ? AND is_deleted = ?", folderID, false)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count folder messages: %w", err)
	}
	return count, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountUnread")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("account_id = ? AND is_read = ? AND is_deleted = ?", accountID, false, false).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// DeleteOrphans removes messages whose folder row no longer exists.
func (r *messageRepository) DeleteOrphans(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.DeleteOrphans")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	liveFolders := r.db.Model(&models.Folder{}).Select("id").Where("account_id = ?", accountID)
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("folder_id IS NULL OR folder_id = '' OR folder_id NOT IN (?)", liveFolders).
		Delete(&models.Message{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to delete orphan messages: %w", result.Error)
	}

	span.SetTag("deleted", result.RowsAffected)
	return result.RowsAffected, nil
}
