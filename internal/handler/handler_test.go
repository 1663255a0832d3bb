package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"marketplace_chat/internal/config"
	"marketplace_chat/internal/relay"
	"marketplace_chat/internal/repository/memory"
	"marketplace_chat/internal/service"
	"marketplace_chat/pkg/logger"
)

type testServer struct {
	srv      *httptest.Server
	relay    *relay.Relay
	services *service.Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		Storage:     config.StorageConfig{Driver: config.StorageDriverMemory},
		Relay:       config.RelayConfig{PingInterval: time.Minute, WriteTimeout: time.Second},
	}
	services := service.NewServices(memory.NewRepositories(), cfg, logger.Nop())
	r := relay.New(services, cfg.Relay, logger.Nop())
	h := NewHandlers(services, r, cfg, logger.Nop())

	router := gin.New()
	router.GET("/health", h.Health.Check)
	router.GET("/server-info", h.Health.ServerInfo)
	v1 := router.Group("/api/v1")
	v1.POST("/chats/resolve", h.Chat.Resolve)
	v1.GET("/chats/:id", h.Chat.Get)
	v1.GET("/chats/:id/messages", h.Chat.GetMessages)
	v1.GET("/chats/:id/stats", h.Stats.GetChatStats)
	v1.DELETE("/chats/:id", h.Chat.Close)
	v1.GET("/presence/:uid", h.Presence.Get)
	router.GET("/ws", h.WebSocket.HandleChat)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, relay: r, services: services}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) resolve(t *testing.T, participants ...string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/chats/resolve", map[string]any{
		"participants": participants,
		"subjectId":    "p1",
		"subjectName":  "Bicicleta",
	})
	require.Equal(t, http.StatusOK, status)
	return body["chatId"].(string)
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func ofType(frameType string) func(map[string]any) bool {
	return func(frame map[string]any) bool { return frame["type"] == frameType }
}

func TestResolve(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/v1/chats/resolve", map[string]any{"participants": []string{"u1"}, "subjectId": "p1"})
	req.Equal(http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/chats/resolve", map[string]any{"participants": []string{"u1", "u2"}})
	req.Equal(http.StatusBadRequest, status)

	status, first := s.do(t, http.MethodPost, "/api/v1/chats/resolve", map[string]any{"participants": []string{"u1", "u2"}, "subjectId": "p1"})
	req.Equal(http.StatusOK, status)
	req.Equal(true, first["created"])

	status, second := s.do(t, http.MethodPost, "/api/v1/chats/resolve", map[string]any{"participants": []string{"u2", "u1"}, "subjectId": "p1"})
	req.Equal(http.StatusOK, status)
	req.Equal(false, second["created"])
	req.Equal(first["chatId"], second["chatId"])

	status, chat := s.do(t, http.MethodGet, "/api/v1/chats/"+first["chatId"].(string), nil)
	req.Equal(http.StatusOK, status)
	req.Equal("p1", chat["produtoId"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/chats/missing", nil)
	req.Equal(http.StatusNotFound, status)
}

func TestWebSocket_MessageHistoryAndPresence(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	chatID := s.resolve(t, "u1", "u2")

	u1 := s.dial(t, "chatId="+chatID+"&userUid=u1")
	history := readUntil(t, u1, ofType("history"))
	req.Empty(history["messages"])

	req.NoError(u1.WriteJSON(map[string]any{"type": "message", "from": "u1", "fromName": "Ana", "text": "hi", "timestamp": 1000}))
	msg := readUntil(t, u1, ofType("message"))
	req.Equal("hi", msg["text"])
	req.Equal("Ana", msg["fromName"])
	req.EqualValues(1000, msg["timestamp"])

	u2 := s.dial(t, "chatId="+chatID+"&userUid=u2")
	history = readUntil(t, u2, ofType("history"))
	msgs := history["messages"].([]any)
	req.Len(msgs, 1)
	req.Equal("hi", msgs[0].(map[string]any)["text"])

	readUntil(t, u1, func(f map[string]any) bool { return f["type"] == "user_online" && f["userUid"] == "u2" })

	status, body := s.do(t, http.MethodGet, "/api/v1/chats/"+chatID+"/messages", nil)
	req.Equal(http.StatusOK, status)
	req.Len(body["messages"], 1)

	require.Eventually(t, func() bool {
		status, presence := s.do(t, http.MethodGet, "/api/v1/presence/u2", nil)
		return status == http.StatusOK && presence["online"] == true
	}, 2*time.Second, 20*time.Millisecond)

	// обрыв u2 приходит к u1 как user_offline
	req.NoError(u2.Close())
	readUntil(t, u1, func(f map[string]any) bool { return f["type"] == "user_offline" && f["userUid"] == "u2" })
}

func TestWebSocket_BlankMessageReturnsError(t *testing.T) {
	s := newTestServer(t)
	chatID := s.resolve(t, "u1", "u2")

	u1 := s.dial(t, "chatId="+chatID+"&userUid=u1")
	readUntil(t, u1, ofType("history"))

	require.NoError(t, u1.WriteJSON(map[string]any{"type": "message", "from": "u1", "text": "  "}))
	frame := readUntil(t, u1, ofType("error"))
	require.Contains(t, frame["error"], "must not be empty")
}

func TestWebSocket_MissingIdentityClosesConnection(t *testing.T) {
	s := newTestServer(t)

	conn := s.dial(t, "chatId=c1")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Zero(t, s.relay.Connections())
}

func TestCloseChatOverHTTP(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	chatID := s.resolve(t, "u1", "u2")

	u1 := s.dial(t, "chatId="+chatID+"&userUid=u1")
	readUntil(t, u1, ofType("history"))

	status, _ := s.do(t, http.MethodDelete, "/api/v1/chats/"+chatID, nil)
	req.Equal(http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/chats/"+chatID+"?userUid=u2&fromName=Bruno", nil)
	req.Equal(http.StatusNoContent, status)

	closed := readUntil(t, u1, ofType("chat_closed"))
	req.Equal("u2", closed["closedBy"])
	req.Equal("Bruno", closed["closedByName"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/chats/"+chatID, nil)
	req.Equal(http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/chats/"+chatID+"?userUid=u2", nil)
	req.Equal(http.StatusNotFound, status)
}

func TestHealthReportsConnections(t *testing.T) {
	s := newTestServer(t)
	chatID := s.resolve(t, "u1", "u2")
	u1 := s.dial(t, "chatId="+chatID+"&userUid=u1")
	readUntil(t, u1, ofType("history"))

	status, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["connections"])
}

func TestChatStats(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	chatID := s.resolve(t, "u1", "u2")

	u1 := s.dial(t, "chatId="+chatID+"&userUid=u1")
	readUntil(t, u1, ofType("history"))
	for _, ts := range []int{2000, 1000} {
		req.NoError(u1.WriteJSON(map[string]any{"type": "message", "from": "u1", "text": "oi", "timestamp": ts}))
		readUntil(t, u1, ofType("message"))
	}

	status, stats := s.do(t, http.MethodGet, "/api/v1/chats/"+chatID+"/stats", nil)
	req.Equal(http.StatusOK, status)
	req.EqualValues(2, stats["messageCount"])
	req.EqualValues(2, stats["participants"])
	req.EqualValues(1, stats["liveConnections"])
	req.NotEmpty(stats["firstMessageAt"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/chats/missing/stats", nil)
	req.Equal(http.StatusNotFound, status)
}

func TestServerInfo(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/server-info", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "memory", body["storage"])
	require.Equal(t, "1m0s", body["ping_interval"])
	require.Equal(t, false, body["auth_enabled"])
}
