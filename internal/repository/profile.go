package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"marketplace_chat/internal/domain"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

// ProfileRepository читает профили пользователей (провайдер личности)
type ProfileRepository interface {
	GetByID(ctx context.Context, uid string) (*domain.Profile, error)
}

type profileRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewProfileRepository(db *pgxpool.Pool, log logger.Logger) ProfileRepository {
	return &profileRepository{db: db, log: log}
}

func (r *profileRepository) GetByID(ctx context.Context, uid string) (*domain.Profile, error) {
	query := `
		SELECT uid, COALESCE(display_name, ''), COALESCE(photo_url, '')
		FROM usuarios
		WHERE uid = $1
	`

	profile := &domain.Profile{}
	err := r.db.QueryRow(ctx, query, uid).Scan(
		&profile.UID, &profile.DisplayName, &profile.PhotoURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get profile", "error", err, "uid", uid)
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}
