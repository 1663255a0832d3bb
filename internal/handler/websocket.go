package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"marketplace_chat/internal/config"
	"marketplace_chat/internal/relay"
	"marketplace_chat/pkg/logger"
)

const maxFrameBytes = 64 << 10

type WebSocketHandler struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	cfg      config.RelayConfig
	log      logger.Logger
}

func NewWebSocketHandler(r *relay.Relay, cfg config.RelayConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		relay: r,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(req *http.Request) bool {
				origin := req.Header.Get("Origin")
				return origin == "" || len(cfg.AllowedOrigins) == 0 || lo.Contains(cfg.AllowedOrigins, origin)
			},
		},
		cfg: cfg,
		log: log,
	}
}

// HandleChat - GET /ws?chatId=&userUid=. Без любого из параметров соединение
// закрывается сразу после апгрейда.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	// Операции с хранилищем не отменяются вместе с сокетом
	ctx := context.WithoutCancel(c.Request.Context())

	transport := relay.NewWebSocketTransport(ws, h.cfg.WriteTimeout)
	conn, err := h.relay.Admit(ctx, c.Query("chatId"), c.Query("userUid"), transport)
	if err != nil {
		return
	}
	defer h.relay.Disconnect(conn)

	ws.SetReadLimit(maxFrameBytes)
	ws.SetPongHandler(func(string) error {
		conn.MarkAlive()
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Connection read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}

		h.relay.HandleInbound(ctx, conn, data)
	}
}
