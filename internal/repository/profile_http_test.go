package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"marketplace_chat/internal/domain"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

func TestHTTPProfileRepository_GetByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/seller":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"displayName":"Bruno","photoURL":"b.png","banido":false}`))
		case "/users/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	repo := NewHTTPProfileRepository(srv.URL+"/", time.Second, logger.Nop())
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		profile, err := repo.GetByID(ctx, "seller")
		require.NoError(t, err)
		require.Equal(t, &domain.Profile{UID: "seller", DisplayName: "Bruno", PhotoURL: "b.png"}, profile)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "ghost")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("provider error", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "broken")
		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrNotFound)
	})
}
