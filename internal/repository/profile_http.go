package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace_chat/internal/domain"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

// httpProfileRepository читает профили у внешнего провайдера личности:
// GET {baseURL}/users/{uid}
type httpProfileRepository struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewHTTPProfileRepository создает клиент провайдера профилей
func NewHTTPProfileRepository(baseURL string, timeout time.Duration, log logger.Logger) ProfileRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpProfileRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (r *httpProfileRepository) GetByID(ctx context.Context, uid string) (*domain.Profile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/users/"+url.PathEscape(uid), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		r.log.Error("Profile provider request failed", "error", err, "uid", uid)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("profile provider returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	profile := &domain.Profile{}
	if err := json.NewDecoder(resp.Body).Decode(profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if profile.UID == "" {
		profile.UID = uid
	}

	return profile, nil
}
