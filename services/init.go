package services

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services/autosync"
	"github.com/customeros/mailsync/services/consistency"
	"github.com/customeros/mailsync/services/credentials"
	"github.com/customeros/mailsync/services/imap"
	"github.com/customeros/mailsync/services/mirror"
	"github.com/customeros/mailsync/services/notification"
	"github.com/customeros/mailsync/services/scheduler"
)

type Services struct {
	Codec       *credentials.Codec
	Pool        *imap.Pool
	IMAPService *imap.Service
	Mirror      *mirror.Mirror
	Hub         *notification.Hub
	Publisher   *notification.RabbitMQPublisher
	Emitter     *notification.Emitter
	Auditor     interfaces.ConsistencyAuditor
	Monitor     *scheduler.Monitor
	Scheduler   *scheduler.Scheduler
	Initializer *autosync.Initializer
}

func InitServices(cfg *config.Config, repos *repository.Repositories, reg prometheus.Registerer, log logger.Logger) (*Services, error) {
	codec, err := credentials.NewCodec(cfg.AppConfig.CredentialsSecret, log)
	if err != nil {
		return nil, err
	}

	// notifications
	hub := notification.NewHub(0)
	channels := []interfaces.Channel{hub}

	var publisher *notification.RabbitMQPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err = notification.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
		channels = append(channels, publisher)
	} else {
		log.Warn("RABBITMQ_URL not set, new mail events are only streamed to connected clients")
	}

	emitter := notification.NewEmitter(*cfg.Notification, repos.MailboxAccountRepository, log, channels...)

	// imap
	mailMirror := mirror.NewMirror(repos, emitter, log)
	dialer := imap.NewDialer(*cfg.Dialer)
	pool := imap.NewPool(*cfg.Pool, dialer, log, imap.NewPoolMetrics(reg))
	imapService := imap.NewService(*cfg.Client, pool, codec, mailMirror, repos, log)

	// sync
	auditor := consistency.NewAuditor(*cfg.Consistency, imapService, repos, log)
	monitor := scheduler.NewMonitor(scheduler.NewMetrics(reg), log)
	syncScheduler := scheduler.NewScheduler(*cfg.Scheduler, imapService, auditor, emitter, repos, monitor, log)
	initializer := autosync.NewInitializer(*cfg.AutoSync, syncScheduler, repos.MailboxAccountRepository, log)

	return &Services{
		Codec:       codec,
		Pool:        pool,
		IMAPService: imapService,
		Mirror:      mailMirror,
		Hub:         hub,
		Publisher:   publisher,
		Emitter:     emitter,
		Auditor:     auditor,
		Monitor:     monitor,
		Scheduler:   syncScheduler,
		Initializer: initializer,
	}, nil
}
