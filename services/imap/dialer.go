package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/internal/tracing"
)

type DialerConfig struct {
	ConnectTimeout     time.Duration `env:"IMAP_CONNECT_TIMEOUT" envDefault:"30s"`
	GreetingTimeout    time.Duration `env:"IMAP_GREETING_TIMEOUT" envDefault:"15s"`
	LoginTimeout       time.Duration `env:"IMAP_LOGIN_TIMEOUT" envDefault:"30s"`
	CommandTimeout     time.Duration `env:"IMAP_COMMAND_TIMEOUT" envDefault:"60s"`
	InsecureSkipVerify bool          `env:"IMAP_TLS_INSECURE_SKIP_VERIFY" envDefault:"true"`
	MinTLSVersion      string        `env:"IMAP_TLS_MIN_VERSION" envDefault:"1.0"`
	MaxTLSVersion      string        `env:"IMAP_TLS_MAX_VERSION" envDefault:"1.3"`
}

// Credentials identify one IMAP login.
type Credentials struct {
	Host     string
	Port     int
	UseTLS   bool
	Username string
	Password string
}

func (c Credentials) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// Key is a stable fingerprint of the login, so pooled sessions opened with
// outdated credentials are never reused.
func (c Credentials) Key() string {
	raw := strings.Join([]string{c.Host, fmt.Sprintf("%d", c.Port), fmt.Sprintf("%t", c.UseTLS), c.Username, c.Password}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)).String()
}

type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Session, error)
}

type imapDialer struct {
	cfg DialerConfig
}

func NewDialer(cfg DialerConfig) Dialer {
	return &imapDialer{cfg: cfg}
}

func (d *imapDialer) Dial(ctx context.Context, creds Credentials) (Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapDialer.Dial")
	defer span.Finish()
	tracing.SetDefaultIMAPSpanTags(ctx, span)
	span.SetTag("server", creds.Host)
	span.SetTag("port", creds.Port)
	span.SetTag("tls", creds.UseTLS)

	addr := creds.Address()
	tlsConfig := d.tlsConfig(creds.Host)

	netDialer := &net.Dialer{
		Timeout:   d.cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var conn net.Conn
	var err error
	if creds.UseTLS {
		conn, err = tls.DialWithDialer(netDialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	// client.New blocks until the server greeting arrives
	if d.cfg.GreetingTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.cfg.GreetingTimeout))
	}
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "no greeting from %s", addr)
	}
	_ = conn.SetDeadline(time.Time{})

	if !creds.UseTLS {
		if ok, _ := c.SupportStartTLS(); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				c.Logout()
				tracing.TraceErr(span, err)
				return nil, errors.Wrap(err, "STARTTLS failed")
			}
			span.SetTag("starttls", true)
		}
	}

	c.Timeout = d.cfg.LoginTimeout
	if err := c.Login(creds.Username, creds.Password); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to login as %s", creds.Username)
	}
	c.Timeout = d.cfg.CommandTimeout

	span.SetTag("success", true)
	return &clientSession{Client: c}, nil
}

func (d *imapDialer) tlsConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: d.cfg.InsecureSkipVerify, // nolint: gosec
		MinVersion:         tlsVersion(d.cfg.MinTLSVersion, tls.VersionTLS10),
		MaxVersion:         tlsVersion(d.cfg.MaxTLSVersion, tls.VersionTLS13),
	}
}

func tlsVersion(v string, fallback uint16) uint16 {
	switch strings.TrimSpace(v) {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.2":
		return tls.VersionTLS12
	case "1.3":
		return tls.VersionTLS13
	default:
		return fallback
	}
}
