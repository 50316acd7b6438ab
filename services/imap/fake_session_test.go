package imap

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emersion/go-imap"

	"github.com/customeros/mailsync/internal/logger"
)

type fakeSession struct {
	mu sync.Mutex

	timeout    time.Duration
	noopErr    error
	noopHook   func()
	noops      int
	logouts    int
	specialUse bool

	mailboxes  []*imap.MailboxInfo
	subscribed []string
	statuses   map[string]*imap.MailboxStatus
	statusErrs []error
	messages   map[string][]*imap.Message
	references map[uint32]string
	rawBodies  map[uint32]string

	selected  string
	selects   int
	readWrite bool
	stored    []uint32
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		statuses:   make(map[string]*imap.MailboxStatus),
		messages:   make(map[string][]*imap.Message),
		references: make(map[uint32]string),
		rawBodies:  make(map[uint32]string),
	}
}

func (s *fakeSession) Noop() error {
	s.mu.Lock()
	hook := s.noopHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.noops++
	return s.noopErr
}

func (s *fakeSession) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	return nil
}

func (s *fakeSession) Support(capability string) (bool, error) {
	return capability == "SPECIAL-USE" && s.specialUse, nil
}

func (s *fakeSession) List(_, _ string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	for _, m := range s.mailboxes {
		ch <- m
	}
	return nil
}

func (s *fakeSession) Lsub(_, _ string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	for _, name := range s.subscribed {
		ch <- &imap.MailboxInfo{Name: name, Delimiter: "/"}
	}
	return nil
}

func (s *fakeSession) Status(name string, _ []imap.StatusItem) (*imap.MailboxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statusErrs) > 0 {
		err := s.statusErrs[0]
		s.statusErrs = s.statusErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	status, ok := s.statuses[name]
	if !ok {
		return nil, errors.New("NO mailbox does not exist")
	}
	cp := imap.MailboxStatus{
		Name:           status.Name,
		ReadOnly:       status.ReadOnly,
		Items:          status.Items,
		Flags:          status.Flags,
		PermanentFlags: status.PermanentFlags,
		UnseenSeqNum:   status.UnseenSeqNum,
		Messages:       status.Messages,
		Recent:         status.Recent,
		Unseen:         status.Unseen,
		UidNext:        status.UidNext,
		UidValidity:    status.UidValidity,
		AppendLimit:    status.AppendLimit,
	}
	return &cp, nil
}

func (s *fakeSession) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selects++
	s.selected = name
	s.readWrite = !readOnly
	status, ok := s.statuses[name]
	if !ok {
		return nil, errors.New("NO mailbox does not exist")
	}
	return &imap.MailboxStatus{Name: name, Messages: uint32(len(s.messages[name])), UidValidity: status.UidValidity}, nil
}

func (s *fakeSession) Fetch(seqset *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	s.mu.Lock()
	var out []*imap.Message
	for i, msg := range s.messages[s.selected] {
		if seqset.Contains(uint32(i + 1)) {
			out = append(out, s.copyMessage(msg, uint32(i+1)))
		}
	}
	s.mu.Unlock()
	for _, msg := range out {
		ch <- msg
	}
	return nil
}

func (s *fakeSession) copyMessage(msg *imap.Message, seq uint32) *imap.Message {
	if msg == nil {
		return &imap.Message{SeqNum: seq}
	}
	cp := *msg
	cp.SeqNum = seq
	cp.Body = make(map[*imap.BodySectionName]imap.Literal)
	if refs, ok := s.references[msg.Uid]; ok {
		cp.Body[referencesSection] = bytes.NewBufferString(refs)
	}
	return &cp
}

func (s *fakeSession) UidFetch(seqset *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	s.mu.Lock()
	var out []*imap.Message
	for _, msg := range s.messages[s.selected] {
		if msg == nil || !seqset.Contains(msg.Uid) {
			continue
		}
		raw, ok := s.rawBodies[msg.Uid]
		if !ok {
			continue
		}
		out = append(out, &imap.Message{
			Uid:  msg.Uid,
			Body: map[*imap.BodySectionName]imap.Literal{{Peek: true}: bytes.NewBufferString(raw)},
		})
	}
	s.mu.Unlock()
	for _, msg := range out {
		ch <- msg
	}
	return nil
}

func (s *fakeSession) UidStore(seqset *imap.SeqSet, _ imap.StoreItem, _ interface{}, _ chan *imap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages[s.selected] {
		if msg != nil && seqset.Contains(msg.Uid) {
			s.stored = append(s.stored, msg.Uid)
			msg.Flags = flagsWith(msg.Flags, imap.SeenFlag)
		}
	}
	return nil
}

func (s *fakeSession) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *fakeSession) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

func (s *fakeSession) logoutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	errs       []error
	sessions   []*fakeSession
	newSession func() *fakeSession
}

func (d *fakeDialer) Dial(_ context.Context, _ Credentials) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	var s *fakeSession
	if d.newSession != nil {
		s = d.newSession()
	} else {
		s = newFakeSession()
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	return log
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		MaxPerAccount:   3,
		TTL:             3 * time.Minute,
		ProbeTimeout:    time.Second,
		LogoutTimeout:   time.Second,
		ConnectAttempts: 3,
		BackoffUnit:     time.Millisecond,
	}
}
