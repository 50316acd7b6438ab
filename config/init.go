package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services/autosync"
	"github.com/customeros/mailsync/services/consistency"
	"github.com/customeros/mailsync/services/imap"
	"github.com/customeros/mailsync/services/notification"
	"github.com/customeros/mailsync/services/scheduler"
)

type Config struct {
	AppConfig              *AppConfig
	Logger                 *logger.Config
	Tracing                *tracing.JaegerConfig
	MailsyncDatabaseConfig *MailsyncDatabaseConfig
	Dialer                 *imap.DialerConfig
	Pool                   *imap.PoolConfig
	Client                 *imap.ClientConfig
	Notification           *notification.EmitterConfig
	Scheduler              *scheduler.Config
	Consistency            *consistency.Config
	AutoSync               *autosync.Config
	Cron                   *cron_config.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:              &AppConfig{},
		Logger:                 &logger.Config{},
		Tracing:                &tracing.JaegerConfig{},
		MailsyncDatabaseConfig: &MailsyncDatabaseConfig{},
		Dialer:                 &imap.DialerConfig{},
		Pool:                   &imap.PoolConfig{},
		Client:                 &imap.ClientConfig{},
		Notification:           &notification.EmitterConfig{},
		Scheduler:              &scheduler.Config{},
		Consistency:            &consistency.Config{},
		AutoSync:               &autosync.Config{},
		Cron:                   &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading mailsync config")
	}

	return config, nil
}
