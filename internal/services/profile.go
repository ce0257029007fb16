package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/peerflex/peerflex/internal/backend"
	"go.uber.org/zap"
)

// Profile is a user's public campus profile.
type Profile struct {
	ID       string
	FullName string
	Program  string
	Bio      string
}

// ProfileUpdate carries the mutable profile fields; empty strings are not
// written.
type ProfileUpdate struct {
	FullName string
	Program  string
	Bio      string
}

// ProfileService wraps the profiles table.
type ProfileService struct {
	client *backend.Client
	logger *zap.Logger
}

// NewProfileService creates a profile service.
func NewProfileService(client *backend.Client, logger *zap.Logger) *ProfileService {
	return &ProfileService{client: client, logger: logger}
}

type profileRow struct {
	ID       backend.FlexID `json:"id"`
	FullName string         `json:"full_name"`
	Program  string         `json:"program"`
	Bio      string         `json:"bio"`
}

// Get returns the signed-in user's own profile.
func (s *ProfileService) Get(ctx context.Context) (Profile, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return Profile{}, err
	}
	return s.GetByID(ctx, session.UserID)
}

// GetByID returns another user's profile.
func (s *ProfileService) GetByID(ctx context.Context, userID string) (Profile, error) {
	rows, err := s.client.Query(ctx, "profiles", backend.QueryOptions{
		Filters: []backend.Filter{backend.Eq("id", userID)},
		Limit:   1,
	})
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if len(rows) == 0 {
		return Profile{}, fmt.Errorf("get profile: %q not found", userID)
	}
	var row profileRow
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return Profile{}, fmt.Errorf("get profile: decode row: %w", err)
	}
	return Profile{
		ID:       row.ID.String(),
		FullName: row.FullName,
		Program:  row.Program,
		Bio:      row.Bio,
	}, nil
}

// Update writes the non-empty fields of upd to the signed-in user's profile
// and returns the fresh row.
func (s *ProfileService) Update(ctx context.Context, upd ProfileUpdate) (Profile, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return Profile{}, err
	}

	patch := map[string]string{}
	if upd.FullName != "" {
		patch["full_name"] = upd.FullName
	}
	if upd.Program != "" {
		patch["program"] = upd.Program
	}
	if upd.Bio != "" {
		patch["bio"] = upd.Bio
	}
	if len(patch) == 0 {
		return s.Get(ctx)
	}

	_, err = s.client.Update(ctx, "profiles",
		[]backend.Filter{backend.Eq("id", session.UserID)},
		patch,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return s.Get(ctx)
}
