package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

const adminRole = "admin"

// SupabaseRoleRepository reads the user_roles table through the Supabase REST API.
type SupabaseRoleRepository struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

type userRoleRow struct {
	Role string `json:"role"`
}

// NewSupabaseRoleRepository creates a role repository. apiKey must be a
// service-role key able to read user_roles.
func NewSupabaseRoleRepository(baseURL, apiKey string, logger *zap.Logger) domainRepo.RoleRepository {
	return &SupabaseRoleRepository{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

func (r *SupabaseRoleRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	params := url.Values{}
	params.Add("user_id", fmt.Sprintf("eq.%s", userID))
	params.Add("select", "role")
	queryURL := fmt.Sprintf("%s/rest/v1/user_roles?%s", r.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", r.apiKey))
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Supabase role lookup failed",
			zap.String("user_id", userID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return false, fmt.Errorf("supabase request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Warn("Supabase role lookup returned non-200 status",
			zap.String("user_id", userID),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", body))
		return false, fmt.Errorf("supabase API error: status %d", resp.StatusCode)
	}

	var rows []userRoleRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	for _, row := range rows {
		if row.Role == adminRole {
			return true, nil
		}
	}
	return false, nil
}
