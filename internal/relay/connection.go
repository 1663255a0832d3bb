package relay

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	apperrors "marketplace_chat/pkg/errors"
)

const defaultSendQueueSize = 64

// Transport - двунаправленный канал до клиента. WriteJSON вызывается только
// из одной горутины записи; Ping и Close - параллельно с ней.
type Transport interface {
	WriteJSON(v any) error
	Ping() error
	Close() error
}

// Connection - живой сокет, привязанный к одному чату и одному пользователю.
// Send только ставит событие в очередь, в транспорт пишет writeLoop.
type Connection struct {
	ID     string
	ChatID string
	UserID string

	transport Transport
	alive     atomic.Bool
	closed    atomic.Bool

	mu      sync.Mutex
	queue   []any
	limit   int
	writing bool
	idle    *sync.Cond
	wake    chan struct{}
	done    chan struct{}

	// online закрывается, когда завершена запись user_online;
	// offline ждет его, чтобы события присутствия не переставлялись
	online chan struct{}
}

func newConnection(chatID, userID string, transport Transport, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	c := &Connection{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    userID,
		transport: transport,
		limit:     queueSize,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		online:    make(chan struct{}),
	}
	c.idle = sync.NewCond(&c.mu)
	c.alive.Store(true)
	return c
}

// Send ставит событие в очередь записи; порядок доставки - порядок вызовов.
// Переполненная очередь - ErrSendQueueFull, закрытое соединение - ErrConnectionClosed.
func (c *Connection) Send(event any) error {
	if c.closed.Load() {
		return apperrors.ErrConnectionClosed
	}

	c.mu.Lock()
	if len(c.queue) >= c.limit {
		c.mu.Unlock()
		return apperrors.ErrSendQueueFull
	}
	c.queue = append(c.queue, event)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Connection) Writable() bool {
	return !c.closed.Load()
}

// MarkAlive вызывается на каждый pong
func (c *Connection) MarkAlive() {
	c.alive.Store(true)
}

// writeLoop - единственный писатель в транспорт. Завершается после close
// или на первой ошибке записи, о которой сообщает onError.
func (c *Connection) writeLoop(onError func(*Connection, error)) {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			event, ok := c.next()
			if !ok {
				break
			}
			err := c.transport.WriteJSON(event)

			c.mu.Lock()
			c.writing = false
			c.idle.Broadcast()
			c.mu.Unlock()

			if err != nil {
				onError(c, err)
				return
			}
		}
	}
}

func (c *Connection) next() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 || c.closed.Load() {
		return nil, false
	}
	event := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.writing = true
	return event, true
}

// flush ждет, пока очередь опустеет или соединение закроется
func (c *Connection) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for (len(c.queue) > 0 || c.writing) && !c.closed.Load() {
		c.idle.Wait()
	}
}

// probe сбрасывает флаг живости и сообщает, был ли ответ на прошлый пинг
func (c *Connection) probe() bool {
	return c.alive.Swap(false)
}

func (c *Connection) ping() error {
	if c.closed.Load() {
		return apperrors.ErrConnectionClosed
	}
	return c.transport.Ping()
}

// close закрывает транспорт ровно один раз и отбрасывает неотправленное;
// false, если уже закрыт
func (c *Connection) close() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	close(c.done)
	_ = c.transport.Close()

	c.mu.Lock()
	c.queue = nil
	c.idle.Broadcast()
	c.mu.Unlock()
	return true
}
