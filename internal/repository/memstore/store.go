// Package memstore keeps mail sync state in process memory with the same
// uniqueness rules as the postgres repositories.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/utils"
)

type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*models.MailboxAccount
	folders   map[string]*models.Folder
	messages  map[string]*models.Message
	processed map[string]*models.ProcessedMessage
}

func New() *Store {
	return &Store{
		accounts:  make(map[string]*models.MailboxAccount),
		folders:   make(map[string]*models.Folder),
		messages:  make(map[string]*models.Message),
		processed: make(map[string]*models.ProcessedMessage),
	}
}

// Repositories exposes the store through the same bundle the postgres layer returns.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		MailboxAccountRepository:   &accountRepo{s},
		FolderRepository:           &folderRepo{s},
		MessageRepository:          &messageRepo{s},
		ProcessedMessageRepository: &processedRepo{s},
	}
}

func (s *Store) PutAccount(account *models.MailboxAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	cp := *account
	s.accounts[account.ID] = &cp
}

func (s *Store) Account(id string) *models.MailboxAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[id]; ok {
		cp := *a
		return &cp
	}
	return nil
}

// PutMessage stores a message as-is, bypassing the uniqueness check.
func (s *Store) PutMessage(message *models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.ID == "" {
		message.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	cp := *message
	s.messages[message.ID] = &cp
}

func (s *Store) Messages(accountID string) []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, m := range s.messages {
		if m.AccountID == accountID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *Store) Processed(accountID string) []*models.ProcessedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ProcessedMessage
	for _, p := range s.processed {
		if p.AccountID == accountID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

func key(a, b string) string {
	return a + "\x00" + b
}

type accountRepo struct{ s *Store }

func (r *accountRepo) Ping(context.Context) error { return nil }

func (r *accountRepo) GetByID(_ context.Context, id string) (*models.MailboxAccount, error) {
	return r.s.Account(id), nil
}

func (r *accountRepo) ListSyncable(context.Context) ([]*models.MailboxAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.MailboxAccount
	for _, a := range r.s.accounts {
		if a.IsSyncable() {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *accountRepo) UpdateLastSync(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.accounts[id]; ok {
		t := at
		a.LastSyncAt = &t
	}
	return nil
}

type folderRepo struct{ s *Store }

func (r *folderRepo) findByPath(accountID, path string) *models.Folder {
	for _, f := range r.s.folders {
		if f.AccountID == accountID && f.Path == path {
			return f
		}
	}
	return nil
}

func (r *folderRepo) Upsert(_ context.Context, folder *models.Folder) (*models.Folder, error) {
	if folder.AccountID == "" || folder.Path == "" {
		return nil, repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := utils.Now()
	if existing := r.findByPath(folder.AccountID, folder.Path); existing != nil {
		existing.Name = folder.Name
		existing.Delimiter = folder.Delimiter
		existing.SpecialUse = folder.SpecialUse
		existing.Subscribed = folder.Subscribed
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}

	stored := *folder
	if stored.ID == "" {
		stored.ID = utils.GenerateNanoIDWithPrefix("fold", 16)
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.folders[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (r *folderRepo) GetByID(_ context.Context, id string) (*models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if f, ok := r.s.folders[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (r *folderRepo) GetByPath(_ context.Context, accountID, path string) (*models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if f := r.findByPath(accountID, path); f != nil {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (r *folderRepo) ListByAccount(_ context.Context, accountID string) ([]*models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Folder
	for _, f := range r.s.folders {
		if f.AccountID == accountID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *folderRepo) UpdateCounters(_ context.Context, id string, total, unread int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.folders[id]; ok {
		f.TotalMessages = total
		f.UnreadMessages = unread
		f.UpdatedAt = utils.Now()
	}
	return nil
}

func (r *folderRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.folders, id)
	return nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) GetByMessageID(_ context.Context, accountID, messageID string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.messages {
		if m.AccountID == accountID && m.MessageID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *messageRepo) Create(_ context.Context, message *models.Message) (bool, error) {
	if message.AccountID == "" || message.MessageID == "" {
		return false, repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.AccountID == message.AccountID && m.MessageID == message.MessageID {
			return false, nil
		}
	}
	if message.ID == "" {
		message.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	now := utils.Now()
	message.CreatedAt = now
	message.UpdatedAt = now
	cp := *message
	r.s.messages[cp.ID] = &cp
	return true, nil
}

func (r *messageRepo) UpdateFlags(_ context.Context, id string, flags models.MessageFlags) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.messages[id]; ok {
		m.Flags = append([]string(nil), flags.Flags...)
		m.IsRead = flags.IsRead
		m.IsFlagged = flags.IsFlagged
		m.IsDeleted = flags.IsDeleted
		m.UpdatedAt = utils.Now()
	}
	return nil
}

func (r *messageRepo) UpdateBody(_ context.Context, id string, text, html string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.messages[id]; ok {
		m.TextContent = text
		m.HTMLContent = html
		m.UpdatedAt = utils.Now()
	}
	return nil
}

func (r *messageRepo) CountByFolder(_ context.Context, folderID string, unreadOnly bool) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var count int64
	for _, m := range r.s.messages {
		if m.FolderID != folderID || m.IsDeleted {
			continue
		}
		if unreadOnly && m.IsRead {
			continue
		}
		count++
	}
	return count, nil
}

func (r *messageRepo) CountUnread(_ context.Context, accountID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var count int64
	for _, m := range r.s.messages {
		if m.AccountID == accountID && !m.IsRead && !m.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (r *messageRepo) DeleteOrphans(_ context.Context, accountID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var removed int64
	for id, m := range r.s.messages {
		if m.AccountID != accountID {
			continue
		}
		folder, ok := r.s.folders[m.FolderID]
		if ok && folder.AccountID == accountID {
			continue
		}
		delete(r.s.messages, id)
		removed++
	}
	return removed, nil
}

type processedRepo struct{ s *Store }

func (r *processedRepo) Append(_ context.Context, accountID, messageID, folderPath string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key(accountID, messageID)
	if _, ok := r.s.processed[k]; ok {
		return nil
	}
	r.s.processed[k] = &models.ProcessedMessage{
		ID:          utils.GenerateNanoIDWithPrefix("proc", 16),
		AccountID:   accountID,
		MessageID:   messageID,
		FolderPath:  folderPath,
		ProcessedAt: utils.Now(),
	}
	return nil
}

var (
	_ interfaces.MailboxAccountRepository   = (*accountRepo)(nil)
	_ interfaces.FolderRepository           = (*folderRepo)(nil)
	_ interfaces.MessageRepository          = (*messageRepo)(nil)
	_ interfaces.ProcessedMessageRepository = (*processedRepo)(nil)
)
