package handler

import (
	"net/http"

	"marketplace_chat/internal/config"
	"marketplace_chat/internal/relay"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	relay        *relay.Relay
	environment  string
	storage      string
	pingInterval string
	authEnabled  bool
}

func NewHealthHandler(cfg *config.Config, relay *relay.Relay) *HealthHandler {
	return &HealthHandler{
		relay:        relay,
		environment:  cfg.Environment,
		storage:      cfg.Storage.Driver,
		pingInterval: cfg.Relay.PingInterval.String(),
		authEnabled:  cfg.JWT.Secret != "",
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "marketplace-chat",
		"connections": h.relay.Connections(),
	})
}

// ServerInfo возвращает параметры подключения для клиентов
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"environment":   h.environment,
		"storage":       h.storage,
		"ws_path":       "/ws",
		"api_base":      "/api/v1",
		"ping_interval": h.pingInterval,
		"auth_enabled":  h.authEnabled,
	})
}
