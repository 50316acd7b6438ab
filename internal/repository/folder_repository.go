package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type folderRepository struct {
	db *gorm.DB
}

func NewFolderRepository(db *gorm.DB) interfaces.FolderRepository {
	return &folderRepository{db: db}
}

// Upsert inserts the folder or refreshes its listing attributes; counters are left alone.
func (r *folderRepository) Upsert(ctx context.Context, folder *models.Folder) (*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.Upsert")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, folder.AccountID)
	tracing.TagFolder(span, folder.Path)

	if folder.AccountID == "" || folder.Path == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return nil, ErrInvalidInput
	}

	folder.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "delimiter", "special_use", "subscribed", "updated_at"}),
		}).
		Create(folder).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to upsert folder: %w", err)
	}

	// on conflict the generated id is not the stored one
	return r.GetByPath(ctx, folder.AccountID, folder.Path)
}

func (r *folderRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var folder models.Folder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &folder, nil
}

func (r *folderRepository) GetByPath(ctx context.Context, accountID, path string) (*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.GetByPath")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, path)

	var folder models.Folder
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND path = ?", accountID, path).
		First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get folder by path: %w", err)
	}
	return &folder, nil
}

func (r *folderRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.ListByAccount")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	var folders []*models.Folder
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("path ASC").
		Find(&folders).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

func (r *folderRepository) UpdateCounters(ctx context.Context, id string, total, unread int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.UpdateCounters")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)
	span.SetTag("total", total)
	span.SetTag("unread", unread)

	err := r.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_messages":  total,
			"unread_messages": unread,
			"updated_at":      utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update folder counters: %w", err)
	}
	return nil
}

func (r *folderRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.Delete")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Folder{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}
