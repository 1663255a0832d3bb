package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantKey_IgnoresOrderAndDuplicates(t *testing.T) {
	req := require.New(t)

	req.Equal(ParticipantKey([]string{"u2", "u1"}), ParticipantKey([]string{"u1", "u2"}))
	req.Equal(ParticipantKey([]string{"u1", "u2"}), ParticipantKey([]string{" u1", "u2", "u1", ""}))
	req.NotEqual(ParticipantKey([]string{"u1", "u2"}), ParticipantKey([]string{"u1", "u3"}))
	req.Equal("u1|u2", ParticipantKey([]string{"u2", "u1"}))
}

func TestNormalizeParticipants_KeepsFirstOccurrenceOrder(t *testing.T) {
	require.Equal(t, []string{"b", "a"}, NormalizeParticipants([]string{"b", " a ", "b", "  "}))
}

func TestChat_OtherParticipant(t *testing.T) {
	req := require.New(t)
	chat := &Chat{Participants: []string{"u1", "u2", "u3"}}

	other, ok := chat.OtherParticipant("u1")
	req.True(ok)
	req.Equal("u2", other)

	other, ok = chat.OtherParticipant("u2")
	req.True(ok)
	req.Equal("u1", other)

	_, ok = (&Chat{Participants: []string{"u1"}}).OtherParticipant("u1")
	req.False(ok)
}

func TestChat_ApplyMergesMetaPerKey(t *testing.T) {
	req := require.New(t)
	chat := &Chat{
		Participants: []string{"u1", "u2"},
		ParticipantsMeta: map[string]ParticipantMeta{
			"u1": {Name: "Ana"},
			"u2": {Name: "Bruno", PhotoURL: "b.png"},
		},
	}
	text := "oi"
	at := time.UnixMilli(1000).UTC()
	now := time.Now()

	chat.Apply(HeaderUpdate{
		ParticipantsMeta: map[string]ParticipantMeta{"u1": {Name: "Ana Maria", PhotoURL: "a.png"}},
		LastMessage:      &text,
		LastMessageAt:    &at,
	}, now)

	req.Equal(ParticipantMeta{Name: "Ana Maria", PhotoURL: "a.png"}, chat.ParticipantsMeta["u1"])
	req.Equal(ParticipantMeta{Name: "Bruno", PhotoURL: "b.png"}, chat.ParticipantsMeta["u2"])
	req.Equal("oi", chat.LastMessage)
	req.Equal(at, *chat.LastMessageAt)
	req.Equal(now, chat.UpdatedAt)
}

func TestProfile_MetaFallsBackToPlaceholder(t *testing.T) {
	req := require.New(t)

	var missing *Profile
	req.Equal(PlaceholderMeta(), missing.Meta())
	req.Equal(ParticipantMeta{Name: PlaceholderName, PhotoURL: "x.png"}, (&Profile{PhotoURL: "x.png"}).Meta())
	req.Equal(ParticipantMeta{Name: "Carla"}, (&Profile{DisplayName: "Carla"}).Meta())
}

func TestNewHistoryEvent_PreservesOrder(t *testing.T) {
	req := require.New(t)
	msgs := []*Message{
		{ID: "m1", Text: "a", Timestamp: TimeFromMillis(1000)},
		{ID: "m2", Text: "b", Timestamp: TimeFromMillis(1000)},
	}

	evt := NewHistoryEvent(msgs)
	req.Equal(FrameTypeHistory, evt.Type)
	req.Len(evt.Messages, 2)
	req.Equal("m1", evt.Messages[0].ID)
	req.Equal("m2", evt.Messages[1].ID)
	req.Equal(int64(1000), evt.Messages[0].Timestamp)
	req.Empty(evt.Messages[0].Type)

	empty := NewHistoryEvent(nil)
	req.NotNil(empty.Messages)
}
