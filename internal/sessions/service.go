package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// GoogleTokens are the provider credentials captured at login.
type GoogleTokens struct {
	AccessToken  string
	RefreshToken string
}

// CreateSession stores a new refresh session and returns it. The refresh
// token is the long-lived credential; SID is the opaque handle access tokens
// carry, so the two are minted independently.
func (s *Service) CreateSession(ctx context.Context, sub, name string, g GoogleTokens, ttl time.Duration) (*Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	sess := &Session{
		SID:                uuid.NewString(),
		RefreshToken:       hex.EncodeToString(b),
		Sub:                sub,
		Name:               name,
		GoogleAccessToken:  g.AccessToken,
		GoogleRefreshToken: g.RefreshToken,
		ExpiresAt:          time.Now().UTC().Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ValidateRefresh returns the session if refresh token is valid and not expired
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	sess, err := s.repo.GetByRefresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		// cleanup expired session
		_ = s.repo.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return sess, nil
}

// GetBySID returns the session referenced by an access token's sid claim,
// nil when unknown or expired.
func (s *Service) GetBySID(ctx context.Context, sid string) (*Session, error) {
	sess, err := s.repo.GetBySID(ctx, sid)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		_ = s.repo.DeleteByRefresh(ctx, sess.RefreshToken)
		return nil, nil
	}
	return sess, nil
}

// UpdateGoogleAccess stores a renewed Google access token on the session.
func (s *Service) UpdateGoogleAccess(ctx context.Context, refresh, accessToken string) error {
	return s.repo.UpdateGoogleAccess(ctx, refresh, accessToken)
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByRefresh(ctx, refresh)
}
