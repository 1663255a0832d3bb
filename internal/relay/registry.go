package relay

import (
	"strings"
	"sync"

	apperrors "marketplace_chat/pkg/errors"
)

// Registry хранит все принятые соединения процесса. Дубликаты (user, chat)
// не отклоняются.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	queueSize int
}

// NewRegistry: sendQueueSize - предел очереди записи каждого соединения,
// <= 0 - значение по умолчанию
func NewRegistry(sendQueueSize int) *Registry {
	return &Registry{conns: make(map[string]*Connection), queueSize: sendQueueSize}
}

// Admit регистрирует соединение. При пустом chatID или userID транспорт
// закрывается сразу и ничего не сохраняется.
func (r *Registry) Admit(chatID, userID string, transport Transport) (*Connection, error) {
	chatID = strings.TrimSpace(chatID)
	userID = strings.TrimSpace(userID)
	if chatID == "" || userID == "" {
		_ = transport.Close()
		return nil, apperrors.ErrMissingIdentity
	}

	conn := newConnection(chatID, userID, transport, r.queueSize)

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	return conn, nil
}

// Remove идемпотентен; true, если соединение было в реестре
func (r *Registry) Remove(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		return false
	}
	delete(r.conns, conn.ID)
	return true
}

// ForEachInChat обходит снимок соединений чата, пропуская незаписываемые.
// fn вызывается без удержания блокировки реестра.
func (r *Registry) ForEachInChat(chatID string, fn func(*Connection)) {
	for _, conn := range r.Snapshot() {
		if conn.ChatID != chatID || !conn.Writable() {
			continue
		}
		fn(conn)
	}
}

func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// CountInChat - число записываемых соединений чата
func (r *Registry) CountInChat(chatID string) int {
	n := 0
	r.ForEachInChat(chatID, func(*Connection) { n++ })
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
