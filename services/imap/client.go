package imap

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services/credentials"
	"github.com/customeros/mailsync/services/mirror"
)

type ClientConfig struct {
	FolderLockTimeout time.Duration `env:"IMAP_FOLDER_LOCK_TIMEOUT" envDefault:"30s"`
	StatusAttempts    int           `env:"IMAP_STATUS_ATTEMPTS" envDefault:"3"`
	StatusRetryDelay  time.Duration `env:"IMAP_STATUS_RETRY_DELAY" envDefault:"1s"`
	MessageLimit      int           `env:"IMAP_SYNC_MESSAGE_LIMIT" envDefault:"100"`
	Folders           []string      `env:"IMAP_SYNC_FOLDERS" envDefault:"INBOX" envSeparator:","`
}

type SecretDecrypter interface {
	Decrypt(value string) string
}

type MessageMirror interface {
	UpsertMessage(ctx context.Context, folder *models.Folder, env *mirror.Envelope) (*mirror.UpsertResult, error)
}

// Client is the protocol client of a single account. It holds at most one
// pooled session between Connect and Disconnect.
type Client struct {
	accountID string
	cfg       ClientConfig
	pool      *Pool
	secrets   SecretDecrypter
	mirror    MessageMirror
	repos     *repository.Repositories
	log       logger.Logger

	mu      sync.Mutex
	session *PooledSession
}

func NewClient(accountID string, cfg ClientConfig, pool *Pool, secrets SecretDecrypter, mirror MessageMirror, repos *repository.Repositories, log logger.Logger) *Client {
	return &Client{
		accountID: accountID,
		cfg:       cfg,
		pool:      pool,
		secrets:   secrets,
		mirror:    mirror,
		repos:     repos,
		log:       log,
	}
}

// Connect resolves the account login and acquires a pooled session.
// Configuration problems wrap ErrInvalidAccountConfig and should not be retried.
func (c *Client) Connect(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.Connect")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	tracing.TagAccount(span, c.accountID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}

	account, err := c.repos.MailboxAccountRepository.GetByID(ctx, c.accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "[%s] failed to load account", c.accountID)
	}
	if account == nil {
		return errors.Wrapf(mailsync_errors.ErrAccountNotFound, "[%s]", c.accountID)
	}

	creds, err := c.credentials(account)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	session, err := c.pool.Acquire(ctx, c.accountID, creds)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "[%s] failed to acquire session for %s", c.accountID, creds.Address())
	}
	c.session = session
	return nil
}

func (c *Client) credentials(account *models.MailboxAccount) (Credentials, error) {
	switch {
	case account.Host == "":
		return Credentials{}, errors.Wrap(mailsync_errors.ErrInvalidAccountConfig, "missing host")
	case account.Port <= 0 || account.Port > 65535:
		return Credentials{}, errors.Wrapf(mailsync_errors.ErrInvalidAccountConfig, "invalid port %d", account.Port)
	case account.LoginName() == "":
		return Credentials{}, errors.Wrap(mailsync_errors.ErrInvalidAccountConfig, "missing login")
	case account.EncryptedSecret == "":
		return Credentials{}, errors.Wrap(mailsync_errors.ErrInvalidAccountConfig, "missing secret")
	}

	secret := c.secrets.Decrypt(account.EncryptedSecret)
	if credentials.LooksLikeOneWayHash(secret) {
		return Credentials{}, errors.Wrap(mailsync_errors.ErrInvalidAccountConfig, "stored secret is a one-way hash")
	}

	return Credentials{
		Host:     account.Host,
		Port:     account.Port,
		UseTLS:   account.UseTLS,
		Username: account.LoginName(),
		Password: secret,
	}, nil
}

// Disconnect hands the session back to the pool.
func (c *Client) Disconnect() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		c.pool.Release(session)
	}
}

func (c *Client) current() (*PooledSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, mailsync_errors.ErrNotConnected
	}
	return c.session, nil
}

// lockFolder takes the session's folder lock; the returned release must always run.
func (c *Client) lockFolder(ctx context.Context, path string) (Session, func(), error) {
	session, err := c.current()
	if err != nil {
		return nil, nil, err
	}
	release, err := session.lockFolder(ctx, c.cfg.FolderLockTimeout)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "[%s][%s]", c.accountID, path)
	}
	return session.Session, release, nil
}

var _ interfaces.MailClient = (*Client)(nil)
