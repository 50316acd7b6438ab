package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/models"
)

type Repositories struct {
	MailboxAccountRepository   interfaces.MailboxAccountRepository
	FolderRepository           interfaces.FolderRepository
	MessageRepository          interfaces.MessageRepository
	ProcessedMessageRepository interfaces.ProcessedMessageRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		MailboxAccountRepository:   NewMailboxAccountRepository(db),
		FolderRepository:           NewFolderRepository(db),
		MessageRepository:          NewMessageRepository(db),
		ProcessedMessageRepository: NewProcessedMessageRepository(db),
	}
}

func MigrateDB(dbConfig *database.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.MailboxAccount{},
		&models.Folder{},
		&models.Message{},
		&models.ProcessedMessage{},
	)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
