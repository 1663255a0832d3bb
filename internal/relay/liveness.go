package relay

import (
	"context"
	"time"

	"marketplace_chat/pkg/logger"
)

// LivenessMonitor раз в interval пингует все соединения и обрывает те,
// что не ответили на предыдущий пинг
type LivenessMonitor struct {
	relay    *Relay
	interval time.Duration
	log      logger.Logger
}

func NewLivenessMonitor(relay *Relay, interval time.Duration, log logger.Logger) *LivenessMonitor {
	return &LivenessMonitor{
		relay:    relay,
		interval: interval,
		log:      log.With("component", "liveness"),
	}
}

// Run блокируется до отмены ctx
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("Liveness monitor started", "interval", m.interval.String())

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep выполняет один проход и возвращает число оборванных соединений
func (m *LivenessMonitor) Sweep() int {
	terminated := 0
	for _, conn := range m.relay.registry.Snapshot() {
		if !conn.probe() {
			m.log.Info("Terminating unresponsive connection", "conn_id", conn.ID, "chat_id", conn.ChatID, "user_uid", conn.UserID)
			m.relay.Disconnect(conn)
			terminated++
			continue
		}
		if err := conn.ping(); err != nil {
			m.log.Debug("Ping failed", "conn_id", conn.ID, "error", err)
		}
	}
	return terminated
}
