package notification

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type EmitterConfig struct {
	QueueSize       int           `env:"NOTIFICATION_QUEUE_SIZE" envDefault:"256"`
	DeliveryTimeout time.Duration `env:"NOTIFICATION_DELIVERY_TIMEOUT" envDefault:"10s"`
}

type pendingEvent struct {
	accountID string
	event     dto.NewMailEvent
}

// Emitter queues notifications and fans them out to every registered channel from one worker.
// Callers never block and never see delivery errors.
type Emitter struct {
	cfg      EmitterConfig
	accounts interfaces.MailboxAccountRepository
	channels []interfaces.Channel
	log      logger.Logger

	mu      sync.Mutex
	queue   chan pendingEvent
	closed  bool
	started bool
	done    chan struct{}
}

func NewEmitter(cfg EmitterConfig, accounts interfaces.MailboxAccountRepository, log logger.Logger, channels ...interfaces.Channel) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	return &Emitter{
		cfg:      cfg,
		accounts: accounts,
		channels: channels,
		log:      log,
		queue:    make(chan pendingEvent, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

func (e *Emitter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	go e.run()
}

func (e *Emitter) NotifyNewMail(ctx context.Context, accountID string, summary dto.NewMailSummary) {
	notificationType := summary.Type
	if notificationType == "" {
		notificationType = enum.NotificationNewEmail
	}
	e.enqueue(accountID, dto.NewMailEvent{
		Type:              notificationType,
		AccountID:         accountID,
		SenderDisplayName: summary.SenderDisplayName,
		Subject:           summary.Subject,
		Folder:            summary.Folder,
		MessageID:         summary.MessageID,
		Count:             summary.Count,
		Timestamp:         utils.Now(),
	})
}

func (e *Emitter) NotifySyncError(ctx context.Context, accountID string, syncErr error) {
	if syncErr == nil {
		return
	}
	e.enqueue(accountID, dto.NewMailEvent{
		Type:      enum.NotificationSyncError,
		AccountID: accountID,
		Error:     syncErr.Error(),
		Timestamp: utils.Now(),
	})
}

func (e *Emitter) enqueue(accountID string, event dto.NewMailEvent) {
	if len(e.channels) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	select {
	case e.queue <- pendingEvent{accountID: accountID, event: event}:
	default:
		e.log.Warnf("[%s] notification queue full, dropping %s event", accountID, event.Type)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for pending := range e.queue {
		e.deliver(pending)
	}
}

func (e *Emitter) deliver(pending pendingEvent) {
	defer tracing.RecoverAndLogToJaeger(e.log)

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DeliveryTimeout)
	defer cancel()

	span, ctx := opentracing.StartSpanFromContext(ctx, "Emitter.Deliver")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, pending.accountID)
	span.SetTag("notification_type", pending.event.Type.String())

	account, err := e.accounts.GetByID(ctx, pending.accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		e.log.Errorf("[%s] failed to resolve account owner: %v", pending.accountID, err)
		return
	}
	if account == nil || account.UserID == "" {
		return
	}

	event := pending.event
	event.UserID = account.UserID
	for _, channel := range e.channels {
		if err := channel.Deliver(ctx, account.UserID, event); err != nil {
			tracing.TraceErr(span, err)
			e.log.Warnf("[%s] %s delivery of %s failed: %v", pending.accountID, channel.Name(), event.Type, err)
		}
	}
}

// Close stops accepting events and drains the queue until ctx ends.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	close(e.queue)
	e.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		e.log.Warnf("notification queue not drained: %d events left", len(e.queue))
		return ctx.Err()
	}
}
