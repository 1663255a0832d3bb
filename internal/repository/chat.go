package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"marketplace_chat/internal/domain"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

type ChatRepository interface {
	// ResolveOrCreate вставляет заголовок или заполняет chat существующим
	// с тем же (participant_key, subject_id). Возвращает true, если чат создан.
	ResolveOrCreate(ctx context.Context, chat *domain.Chat) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	UpdateHeader(ctx context.Context, id string, update domain.HeaderUpdate) error
	AddMessage(ctx context.Context, message *domain.Message) error
	// ListMessages возвращает сообщения по возрастанию (timestamp, seq); limit <= 0 - все
	ListMessages(ctx context.Context, chatID string, limit int) ([]*domain.Message, error)
	// Delete удаляет сообщения, затем заголовок, одной транзакцией
	Delete(ctx context.Context, chatID string) error
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

const chatColumns = `id, participants, participant_key, subject_id, subject_name, participants_meta,
	       last_message, last_message_at, created_at, updated_at`

func (r *chatRepository) ResolveOrCreate(ctx context.Context, chat *domain.Chat) (bool, error) {
	meta, err := json.Marshal(chat.ParticipantsMeta)
	if err != nil {
		return false, fmt.Errorf("failed to marshal participants meta: %w", err)
	}

	query := `
		INSERT INTO chats (id, participants, participant_key, subject_id, subject_name, participants_meta,
		                   last_message, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', NULL, $7, $7)
		ON CONFLICT (participant_key, subject_id) DO NOTHING
		RETURNING created_at
	`

	err = r.db.QueryRow(ctx, query,
		chat.ID, chat.Participants, chat.ParticipantKey, chat.SubjectID, chat.SubjectName, meta, chat.CreatedAt,
	).Scan(&chat.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to insert chat", "error", err, "participant_key", chat.ParticipantKey)
		return false, fmt.Errorf("failed to create chat: %w", err)
	}

	existing, err := r.scanChat(r.db.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE participant_key = $1 AND subject_id = $2`,
		chat.ParticipantKey, chat.SubjectID,
	))
	if err != nil {
		r.log.Error("Failed to load existing chat", "error", err, "participant_key", chat.ParticipantKey)
		return false, err
	}
	*chat = *existing
	return false, nil
}

func (r *chatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	chat, err := r.scanChat(r.db.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
	if err != nil && !errors.Is(err, apperrors.ErrChatNotFound) {
		r.log.Error("Failed to get chat by ID", "error", err, "chat_id", id)
	}
	return chat, err
}

func (r *chatRepository) scanChat(row pgx.Row) (*domain.Chat, error) {
	chat := &domain.Chat{}
	var meta []byte
	err := row.Scan(
		&chat.ID, &chat.Participants, &chat.ParticipantKey, &chat.SubjectID, &chat.SubjectName, &meta,
		&chat.LastMessage, &chat.LastMessageAt, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to scan chat: %w", err)
	}
	chat.ParticipantsMeta = map[string]domain.ParticipantMeta{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &chat.ParticipantsMeta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participants meta: %w", err)
		}
	}
	return chat, nil
}

func (r *chatRepository) UpdateHeader(ctx context.Context, id string, update domain.HeaderUpdate) error {
	args, err := updateHeaderArgs(id, update, time.Now().UTC())
	if err != nil {
		return err
	}

	// participants_meta || patch - слияние по ключам, а не замена документа
	query := `
		UPDATE chats SET
			participants      = COALESCE($2::text[], participants),
			participant_key   = COALESCE($3, participant_key),
			subject_id        = COALESCE(NULLIF($4, ''), subject_id),
			subject_name      = COALESCE(NULLIF($5, ''), subject_name),
			participants_meta = participants_meta || $6::jsonb,
			last_message      = COALESCE($7, last_message),
			last_message_at   = COALESCE($8, last_message_at),
			updated_at        = $9
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to update chat header", "error", err, "chat_id", id)
		return fmt.Errorf("failed to update chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrChatNotFound
	}
	return nil
}

// updateHeaderArgs - параметры $1..$9 запроса UpdateHeader. Незаданные
// поля уходят как NULL или пустая строка, и COALESCE оставляет старое значение.
func updateHeaderArgs(id string, update domain.HeaderUpdate, now time.Time) ([]any, error) {
	patch := update.ParticipantsMeta
	if patch == nil {
		patch = map[string]domain.ParticipantMeta{}
	}
	meta, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal participants meta: %w", err)
	}

	var participants []string
	var participantKey *string
	if update.Participants != nil {
		participants = update.Participants
		key := domain.ParticipantKey(update.Participants)
		participantKey = &key
	}

	return []any{
		id, participants, participantKey, update.SubjectID, update.SubjectName, meta,
		update.LastMessage, update.LastMessageAt, now,
	}, nil
}

func (r *chatRepository) AddMessage(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO chat_messages (id, chat_id, from_uid, from_name, from_photo_url, text, reply_to, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`

	err := r.db.QueryRow(ctx, query,
		message.ID, message.ChatID, message.From, message.FromName, message.FromPhotoURL,
		message.Text, message.ReplyTo, message.Timestamp,
	).Scan(&message.Seq)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "chat_id", message.ChatID)
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT seq, id, chat_id, from_uid, from_name, from_photo_url, text, reply_to, ts
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY ts ASC, seq ASC
	`
	args := []any{chatID}
	if limit > 0 {
		// последние limit сообщений, но в хронологическом порядке
		query = `
			SELECT * FROM (
				SELECT seq, id, chat_id, from_uid, from_name, from_photo_url, text, reply_to, ts
				FROM chat_messages
				WHERE chat_id = $1
				ORDER BY ts DESC, seq DESC
				LIMIT $2
			) recent
			ORDER BY ts ASC, seq ASC
		`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to get messages", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message := &domain.Message{}
		err := rows.Scan(
			&message.Seq, &message.ID, &message.ChatID, &message.From, &message.FromName,
			&message.FromPhotoURL, &message.Text, &message.ReplyTo, &message.Timestamp,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

func (r *chatRepository) Delete(ctx context.Context, chatID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin chat delete", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	defer tx.Rollback(ctx)

	// Сначала дочерние сообщения, затем заголовок
	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE chat_id = $1`, chatID); err != nil {
		r.log.Error("Failed to delete chat messages", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		r.log.Error("Failed to delete chat header", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrChatNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit chat delete", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}
