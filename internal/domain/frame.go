package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Типы фреймов websocket-протокола
const (
	FrameTypeMessage     = "message"
	FrameTypeCloseChat   = "close_chat"
	FrameTypeHistory     = "history"
	FrameTypeUserOnline  = "user_online"
	FrameTypeUserOffline = "user_offline"
	FrameTypeChatClosed  = "chat_closed"
	FrameTypeError       = "error"
)

// InboundFrame - входящий фрейм клиента; набор полей зависит от Type
type InboundFrame struct {
	Type         string       `json:"type"`
	From         string       `json:"from"`
	FromName     string       `json:"fromName"`
	FromPhotoURL string       `json:"fromPhotoURL"`
	Text         string       `json:"text"`
	Timestamp    ClientMillis `json:"timestamp"`
	ReplyTo      *string      `json:"replyTo"`
	ProdutoID    string       `json:"produtoId"`
	ProdutoNome  string       `json:"produtoNome"`
}

// ClientMillis - время клиента в миллисекундах. Принимает целое или дробное
// число, в том числе строкой; дробная часть отбрасывается. Все остальное
// считается отсутствующим значением, и фрейм разбирается дальше.
type ClientMillis struct {
	Millis int64
	Valid  bool
}

func (c *ClientMillis) UnmarshalJSON(data []byte) error {
	*c = ClientMillis{}

	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	if raw == "" || raw == "null" {
		return nil
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*c = ClientMillis{Millis: ms, Valid: true}
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	*c = ClientMillis{Millis: int64(math.Trunc(f)), Valid: true}
	return nil
}

// Ptr - nil, если клиент не прислал пригодное время
func (c ClientMillis) Ptr() *int64 {
	if !c.Valid {
		return nil
	}
	ms := c.Millis
	return &ms
}

type MessagePayload struct {
	Type         string  `json:"type,omitempty"`
	ID           string  `json:"id"`
	From         string  `json:"from"`
	FromName     string  `json:"fromName"`
	FromPhotoURL string  `json:"fromPhotoURL"`
	Text         string  `json:"text"`
	Timestamp    int64   `json:"timestamp"`
	ReplyTo      *string `json:"replyTo"`
}

type HistoryEvent struct {
	Type     string           `json:"type"`
	Messages []MessagePayload `json:"messages"`
}

type PresenceEvent struct {
	Type    string `json:"type"`
	UserUID string `json:"userUid"`
}

type ChatClosedEvent struct {
	Type         string `json:"type"`
	ClosedBy     string `json:"closedBy"`
	ClosedByName string `json:"closedByName"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewMessageEvent(m *Message) MessagePayload {
	p := toPayload(m)
	p.Type = FrameTypeMessage
	return p
}

func NewHistoryEvent(messages []*Message) HistoryEvent {
	payloads := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, toPayload(m))
	}
	return HistoryEvent{Type: FrameTypeHistory, Messages: payloads}
}

func NewErrorEvent(text string) ErrorEvent {
	return ErrorEvent{Type: FrameTypeError, Error: text}
}

func toPayload(m *Message) MessagePayload {
	return MessagePayload{
		ID:           m.ID,
		From:         m.From,
		FromName:     m.FromName,
		FromPhotoURL: m.FromPhotoURL,
		Text:         m.Text,
		Timestamp:    m.Timestamp.UnixMilli(),
		ReplyTo:      m.ReplyTo,
	}
}

// TimeFromMillis переводит миллисекунды клиента во время UTC
func TimeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
