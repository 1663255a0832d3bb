package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository/memory"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

type chatFixture struct {
	chats    *memory.ChatRepository
	profiles *memory.ProfileRepository
	audit    *memory.AuditRepository
	svc      ChatService
}

func newChatFixture(historyLimit int) *chatFixture {
	log := logger.Nop()
	f := &chatFixture{
		chats:    memory.NewChatRepository(),
		profiles: memory.NewProfileRepository(),
		audit:    memory.NewAuditRepository(),
	}
	f.svc = NewChatService(f.chats, NewProfileService(f.profiles, log), NewAuditService(f.audit, log), historyLimit, log)
	return f
}

func TestChatService_ResolveOrCreateReusesChatRegardlessOfOrder(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(0)
	ctx := context.Background()

	first, created, err := f.svc.ResolveOrCreate(ctx, ResolveInput{
		Participants: []string{"buyer", "seller"},
		SubjectID:    "p1",
		SubjectName:  "Bicicleta",
		RequestedBy:  "buyer",
	})
	req.NoError(err)
	req.True(created)

	second, created, err := f.svc.ResolveOrCreate(ctx, ResolveInput{
		Participants: []string{"seller", "buyer"},
		SubjectID:    "p1",
	})
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
	req.Equal("Bicicleta", second.SubjectName)

	other, created, err := f.svc.ResolveOrCreate(ctx, ResolveInput{
		Participants: []string{"buyer", "seller"},
		SubjectID:    "p2",
	})
	req.NoError(err)
	req.True(created)
	req.NotEqual(first.ID, other.ID)

	logs := f.audit.Logs()
	req.Len(logs, 2)
	req.Equal(domain.EventTypeChatCreated, logs[0].EventType)
	req.Equal("buyer", logs[0].ActorUID)
}

func TestChatService_ResolveOrCreateConcurrentCallsAgree(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(0)

	const callers = 16
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, _, err := f.svc.ResolveOrCreate(context.Background(), ResolveInput{
				Participants: []string{"a", "b"},
				SubjectID:    "p1",
			})
			errs[i] = err
			if err == nil {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		req.NoError(errs[i])
		req.Equal(ids[0], id)
	}
	req.Len(f.audit.Logs(), 1)
}

func TestChatService_ResolveOrCreateRejectsBadInput(t *testing.T) {
	f := newChatFixture(0)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ResolveInput
	}{
		{"single participant", ResolveInput{Participants: []string{"a"}, SubjectID: "p1"}},
		{"duplicate participant", ResolveInput{Participants: []string{"a", " a"}, SubjectID: "p1"}},
		{"missing subject", ResolveInput{Participants: []string{"a", "b"}, SubjectID: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.ResolveOrCreate(ctx, tt.in)
			require.ErrorIs(t, err, apperrors.ErrBadRequest)
		})
	}
}

func TestChatService_ResolveOrCreateKeepsOnlyParticipantHints(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(0)

	chat, _, err := f.svc.ResolveOrCreate(context.Background(), ResolveInput{
		Participants: []string{"a", "b"},
		SubjectID:    "p1",
		MetadataHints: map[string]domain.ParticipantMeta{
			"a":        {Name: "Ana"},
			"stranger": {Name: "X"},
		},
	})
	req.NoError(err)
	req.Equal(map[string]domain.ParticipantMeta{"a": {Name: "Ana"}}, chat.ParticipantsMeta)
}

func TestChatService_HistoryHonorsLimit(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(2)
	ctx := context.Background()

	chat, _, err := f.svc.ResolveOrCreate(ctx, ResolveInput{Participants: []string{"a", "b"}, SubjectID: "p1"})
	req.NoError(err)

	for i, text := range []string{"one", "two", "three"} {
		req.NoError(f.chats.AddMessage(ctx, &domain.Message{
			ID: text, ChatID: chat.ID, From: "a", Text: text, Timestamp: domain.TimeFromMillis(int64(1000 + i)),
		}))
	}

	history, err := f.svc.History(ctx, chat.ID)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("two", history[0].Text)
	req.Equal("three", history[1].Text)

	_, err = f.svc.History(ctx, "missing")
	req.ErrorIs(err, apperrors.ErrChatNotFound)
}

func TestChatService_CloseRemovesChatAndMessages(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(0)
	ctx := context.Background()

	chat, _, err := f.svc.ResolveOrCreate(ctx, ResolveInput{Participants: []string{"a", "b"}, SubjectID: "p1"})
	req.NoError(err)
	req.NoError(f.chats.AddMessage(ctx, &domain.Message{ID: "m1", ChatID: chat.ID, From: "a", Text: "oi"}))

	closed, err := f.svc.Close(ctx, chat.ID, "b")
	req.NoError(err)
	req.Equal(chat.ID, closed.ID)

	_, err = f.svc.Get(ctx, chat.ID)
	req.ErrorIs(err, apperrors.ErrChatNotFound)
	msgs, err := f.chats.ListMessages(ctx, chat.ID, 0)
	req.NoError(err)
	req.Empty(msgs)

	_, err = f.svc.Close(ctx, chat.ID, "b")
	req.ErrorIs(err, apperrors.ErrChatNotFound)

	logs := f.audit.Logs()
	req.Equal(domain.EventTypeChatClosed, logs[len(logs)-1].EventType)
	req.Equal("b", logs[len(logs)-1].ActorUID)
}

func TestChatService_SyncParticipantMetadata(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(0)
	ctx := context.Background()

	f.profiles.Put(domain.Profile{UID: "a", DisplayName: "Ana", PhotoURL: "a.png"})

	chat, _, err := f.svc.ResolveOrCreate(ctx, ResolveInput{
		Participants:  []string{"a", "b"},
		SubjectID:     "p1",
		MetadataHints: map[string]domain.ParticipantMeta{"a": {Name: "old"}},
	})
	req.NoError(err)

	req.NoError(f.svc.SyncParticipantMetadata(ctx, chat.ID))

	stored, err := f.svc.Get(ctx, chat.ID)
	req.NoError(err)
	req.Equal(domain.ParticipantMeta{Name: "Ana", PhotoURL: "a.png"}, stored.ParticipantsMeta["a"])
	req.Equal(domain.PlaceholderMeta(), stored.ParticipantsMeta["b"])

	// Повторная синхронизация без изменений не трогает заголовок
	before := stored.UpdatedAt
	req.NoError(f.svc.SyncParticipantMetadata(ctx, chat.ID))
	after, err := f.svc.Get(ctx, chat.ID)
	req.NoError(err)
	req.Equal(before, after.UpdatedAt)

	req.ErrorIs(f.svc.SyncParticipantMetadata(ctx, "missing"), apperrors.ErrChatNotFound)
}
