package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// PlaceholderName подставляется, когда профиль участника недоступен
const PlaceholderName = "Usuário"

const participantKeySeparator = "|"

type ParticipantMeta struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

func PlaceholderMeta() ParticipantMeta {
	return ParticipantMeta{Name: PlaceholderName}
}

// Chat - заголовок чата: участники, предмет обсуждения и кэш метаданных
type Chat struct {
	ID               string                     `json:"id"`
	Participants     []string                   `json:"participants"`
	ParticipantKey   string                     `json:"-"`
	SubjectID        string                     `json:"produtoId"`
	SubjectName      string                     `json:"produtoNome"`
	ParticipantsMeta map[string]ParticipantMeta `json:"participantsMeta"`
	LastMessage      string                     `json:"lastMessage"`
	LastMessageAt    *time.Time                 `json:"lastMessageAt,omitempty"`
	CreatedAt        time.Time                  `json:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

func (c *Chat) HasParticipant(uid string) bool {
	return lo.Contains(c.Participants, uid)
}

// OtherParticipant - первый участник, отличный от отправителя
func (c *Chat) OtherParticipant(uid string) (string, bool) {
	return lo.Find(c.Participants, func(p string) bool { return p != uid })
}

// Message - неизменяемое сообщение чата
type Message struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	From         string    `json:"from"`
	FromName     string    `json:"fromName"`
	FromPhotoURL string    `json:"fromPhotoURL"`
	Text         string    `json:"text"`
	ReplyTo      *string   `json:"replyTo"`
	Timestamp    time.Time `json:"timestamp"`
	Seq          int64     `json:"-"`
}

// HeaderUpdate сливается с заголовком: ParticipantsMeta объединяется по ключам,
// nil/пустые поля не трогают сохраненные значения.
type HeaderUpdate struct {
	Participants     []string
	SubjectID        string
	SubjectName      string
	ParticipantsMeta map[string]ParticipantMeta
	LastMessage      *string
	LastMessageAt    *time.Time
}

// NormalizeParticipants убирает пробелы, пустые значения и дубликаты, сохраняя порядок
func NormalizeParticipants(participants []string) []string {
	trimmed := lo.FilterMap(participants, func(p string, _ int) (string, bool) {
		p = strings.TrimSpace(p)
		return p, p != ""
	})
	return lo.Uniq(trimmed)
}

// ParticipantKey - канонический ключ неупорядоченного множества участников
func ParticipantKey(participants []string) string {
	sorted := NormalizeParticipants(participants)
	sort.Strings(sorted)
	return strings.Join(sorted, participantKeySeparator)
}

// MergeMeta возвращает объединение base и patch, значения patch побеждают
func MergeMeta(base, patch map[string]ParticipantMeta) map[string]ParticipantMeta {
	merged := make(map[string]ParticipantMeta, len(base)+len(patch))
	for uid, meta := range base {
		merged[uid] = meta
	}
	for uid, meta := range patch {
		merged[uid] = meta
	}
	return merged
}

// Apply применяет обновление к копии заголовка в памяти
func (c *Chat) Apply(update HeaderUpdate, now time.Time) {
	if update.Participants != nil {
		c.Participants = append([]string(nil), update.Participants...)
		c.ParticipantKey = ParticipantKey(c.Participants)
	}
	if update.SubjectID != "" {
		c.SubjectID = update.SubjectID
	}
	if update.SubjectName != "" {
		c.SubjectName = update.SubjectName
	}
	if len(update.ParticipantsMeta) > 0 {
		c.ParticipantsMeta = MergeMeta(c.ParticipantsMeta, update.ParticipantsMeta)
	}
	if update.LastMessage != nil {
		c.LastMessage = *update.LastMessage
	}
	if update.LastMessageAt != nil {
		at := *update.LastMessageAt
		c.LastMessageAt = &at
	}
	c.UpdatedAt = now
}
