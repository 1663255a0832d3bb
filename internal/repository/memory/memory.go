// Package memory - хранилище в памяти процесса для локального запуска
// (STORAGE_DRIVER=memory) и тестов. Повторяет контракт pgx/redis репозиториев.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository"
	apperrors "marketplace_chat/pkg/errors"
)

func NewRepositories() *repository.Repositories {
	chats := NewChatRepository()
	return &repository.Repositories{
		Chat:      chats,
		Stats:     chats,
		Profile:   NewProfileRepository(),
		Presence:  NewPresenceRepository(),
		Audit:     NewAuditRepository(),
		RateLimit: NewRateLimitRepository(),
	}
}

type ChatRepository struct {
	mu       sync.Mutex
	chats    map[string]*domain.Chat
	messages map[string][]*domain.Message
	seq      int64
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		chats:    make(map[string]*domain.Chat),
		messages: make(map[string][]*domain.Message),
	}
}

func (r *ChatRepository) ResolveOrCreate(_ context.Context, chat *domain.Chat) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.chats {
		if existing.ParticipantKey == chat.ParticipantKey && existing.SubjectID == chat.SubjectID {
			*chat = *cloneChat(existing)
			return false, nil
		}
	}

	stored := cloneChat(chat)
	stored.UpdatedAt = stored.CreatedAt
	r.chats[chat.ID] = stored
	return true, nil
}

func (r *ChatRepository) GetByID(_ context.Context, id string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[id]
	if !ok {
		return nil, apperrors.ErrChatNotFound
	}
	return cloneChat(chat), nil
}

func (r *ChatRepository) UpdateHeader(_ context.Context, id string, update domain.HeaderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[id]
	if !ok {
		return apperrors.ErrChatNotFound
	}
	chat.Apply(update, time.Now().UTC())
	return nil
}

func (r *ChatRepository) AddMessage(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	message.Seq = r.seq
	stored := *message
	r.messages[message.ChatID] = append(r.messages[message.ChatID], &stored)
	return nil
}

func (r *ChatRepository) ListMessages(_ context.Context, chatID string, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Message, 0, len(r.messages[chatID]))
	for _, m := range r.messages[chatID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *ChatRepository) Delete(_ context.Context, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[chatID]; !ok {
		return apperrors.ErrChatNotFound
	}
	delete(r.messages, chatID)
	delete(r.chats, chatID)
	return nil
}

// GetChatStats делает ChatRepository заодно и StatsRepository
func (r *ChatRepository) GetChatStats(_ context.Context, chatID string) (*domain.ChatStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &domain.ChatStats{ChatID: chatID}
	for _, m := range r.messages[chatID] {
		stats.MessageCount++
		ts := m.Timestamp
		if stats.FirstMessageAt == nil || ts.Before(*stats.FirstMessageAt) {
			stats.FirstMessageAt = &ts
		}
		if stats.LastMessageAt == nil || ts.After(*stats.LastMessageAt) {
			stats.LastMessageAt = &ts
		}
	}
	return stats, nil
}

func cloneChat(c *domain.Chat) *domain.Chat {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.ParticipantsMeta = domain.MergeMeta(c.ParticipantsMeta, nil)
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		cp.LastMessageAt = &at
	}
	return &cp
}

type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]*domain.Profile)}
}

// Put добавляет или заменяет профиль
func (r *ProfileRepository) Put(profile domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UID] = &profile
}

func (r *ProfileRepository) GetByID(_ context.Context, uid string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[uid]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *profile
	return &cp, nil
}

type PresenceRepository struct {
	mu       sync.RWMutex
	presence map[string]domain.Presence
}

func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{presence: make(map[string]domain.Presence)}
}

func (r *PresenceRepository) SetOnline(_ context.Context, uid, chatID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence[uid] = domain.Presence{UserID: uid, Online: true, LastSeen: at, ChatID: chatID}
	return nil
}

func (r *PresenceRepository) SetOffline(_ context.Context, uid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.presence[uid]
	p.UserID = uid
	p.Online = false
	p.LastSeen = at
	r.presence[uid] = p
	return nil
}

func (r *PresenceRepository) Get(_ context.Context, uid string) (*domain.Presence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presence[uid]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &p, nil
}

type AuditRepository struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) CreateLog(_ context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, *log)
	return nil
}

// Logs возвращает копию журнала
func (r *AuditRepository) Logs() []domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditLog(nil), r.logs...)
}

type counter struct {
	count   int64
	expires time.Time
}

type RateLimitRepository struct {
	mu       sync.Mutex
	counters map[string]counter
	now      func() time.Time
}

func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{counters: make(map[string]counter), now: time.Now}
}

func (r *RateLimitRepository) CheckLimit(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.live(key)
	if !ok {
		return true, nil
	}
	return c.count < int64(limit), nil
}

func (r *RateLimitRepository) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.live(key)
	if !ok {
		c = counter{expires: r.now().Add(window)}
	}
	c.count++
	r.counters[key] = c
	return c.count, nil
}

func (r *RateLimitRepository) live(key string) (counter, bool) {
	c, ok := r.counters[key]
	if !ok {
		return counter{}, false
	}
	if !r.now().Before(c.expires) {
		delete(r.counters, key)
		return counter{}, false
	}
	return c, true
}
