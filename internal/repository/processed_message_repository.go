package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type processedMessageRepository struct {
	db *gorm.DB
}

func NewProcessedMessageRepository(db *gorm.DB) interfaces.ProcessedMessageRepository {
	return &processedMessageRepository{db: db}
}

func (r *processedMessageRepository) Append(ctx context.Context, accountID, messageID, folderPath string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processedMessageRepository.Append")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	entry := &models.ProcessedMessage{
		AccountID:   accountID,
		MessageID:   messageID,
		FolderPath:  folderPath,
		ProcessedAt: utils.Now(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(entry).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to append processed message: %w", err)
	}
	return nil
}
