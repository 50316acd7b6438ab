package imap

import (
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Session is the subset of an authenticated IMAP connection the engine uses.
type Session interface {
	Noop() error
	Logout() error
	Support(capability string) (bool, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Lsub(ref, name string, ch chan *imap.MailboxInfo) error
	Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Timeout() time.Duration
	SetTimeout(d time.Duration)
}

type clientSession struct {
	*client.Client
}

func (s *clientSession) Timeout() time.Duration {
	return s.Client.Timeout
}

func (s *clientSession) SetTimeout(d time.Duration) {
	s.Client.Timeout = d
}

// withTimeout runs fn with a temporary command timeout on the session.
func withTimeout(s Session, d time.Duration, fn func() error) error {
	prev := s.Timeout()
	s.SetTimeout(d)
	defer s.SetTimeout(prev)
	return fn()
}

func collectMailboxes(list func(ch chan *imap.MailboxInfo) error) ([]*imap.MailboxInfo, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- list(mailboxes)
	}()

	var out []*imap.MailboxInfo
	for m := range mailboxes {
		out = append(out, m)
	}
	return out, <-done
}

func collectMessages(fetch func(ch chan *imap.Message) error) ([]*imap.Message, error) {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- fetch(messages)
	}()

	var out []*imap.Message
	for m := range messages {
		out = append(out, m)
	}
	return out, <-done
}
