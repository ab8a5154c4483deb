package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/observability"
	"github.com/collabtask/authcore/internal/repository"
)

// DeviceInfo is provenance metadata captured at issuance and copied
// unchanged across every row of a refresh chain.
type DeviceInfo struct {
	Type      string
	ID        string
	IPAddress string
}

// TokenService owns every state transition of the token table. Access
// tokens are opaque random identifiers looked up in storage; there is no
// signing and nothing to verify offline.
type TokenService struct {
	tokenRepo repository.TokenRepository
	markers   RevocationMarkerStore

	accessTTL  time.Duration
	refreshTTL time.Duration
	markerTTL  time.Duration
	retention  time.Duration
}

func NewTokenService(tokenRepo repository.TokenRepository, markers RevocationMarkerStore, accessTTL, refreshTTL, markerTTL, retention time.Duration) *TokenService {
	if markers == nil {
		markers = NewNoopRevocationMarkerStore()
	}
	return &TokenService{
		tokenRepo:  tokenRepo,
		markers:    markers,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		markerTTL:  markerTTL,
		retention:  retention,
	}
}

// Issue starts a fresh session: two independent opaque credentials, one new
// row, no effect on any other row. Concurrent calls for the same user each
// produce an independent session.
func (s *TokenService) Issue(ctx context.Context, userID uint, device DeviceInfo) (*domain.Token, error) {
	now := time.Now().UTC()
	token := &domain.Token{
		UserID:           userID,
		AccessToken:      newOpaqueToken(),
		RefreshToken:     newOpaqueToken(),
		DeviceType:       device.Type,
		DeviceID:         device.ID,
		IPAddress:        device.IPAddress,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
		IsRevoked:        false,
	}
	if err := s.tokenRepo.Create(token); err != nil {
		observability.RecordTokenOperation(ctx, "issue", "error")
		return nil, fmt.Errorf("persist token: %w", err)
	}
	observability.RecordTokenOperation(ctx, "issue", "success")
	return token, nil
}

// Refresh mints a new access token for an existing session. The refresh
// token and the session expiry are carried over unchanged; the old row is
// left untouched and ages out on its own access expiry.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.Token, error) {
	prev, err := s.tokenRepo.FindLatestByRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			observability.RecordTokenOperation(ctx, "refresh", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordTokenOperation(ctx, "refresh", "error")
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	now := time.Now().UTC()
	if prev.SessionExpired(now) {
		observability.RecordTokenOperation(ctx, "refresh", "expired")
		return nil, ErrSessionExpired
	}
	next := &domain.Token{
		UserID:           prev.UserID,
		AccessToken:      newOpaqueToken(),
		RefreshToken:     prev.RefreshToken,
		DeviceType:       prev.DeviceType,
		DeviceID:         prev.DeviceID,
		IPAddress:        prev.IPAddress,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: prev.RefreshExpiresAt,
		IsRevoked:        false,
	}
	if err := s.tokenRepo.Create(next); err != nil {
		observability.RecordTokenOperation(ctx, "refresh", "error")
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}
	observability.RecordTokenOperation(ctx, "refresh", "success")
	return next, nil
}

// Revoke flips one row to revoked and writes the cache marker so other
// replicas see the revocation within the marker TTL at the latest.
func (s *TokenService) Revoke(ctx context.Context, accessToken string, userID uint) (bool, error) {
	changed, err := s.tokenRepo.Revoke(accessToken, userID)
	if err != nil {
		observability.RecordTokenOperation(ctx, "revoke", "error")
		return false, fmt.Errorf("revoke token: %w", err)
	}
	if !changed {
		observability.RecordTokenOperation(ctx, "revoke", "noop")
		return false, nil
	}
	if err := s.markers.Mark(ctx, accessToken, s.markerTTL); err != nil {
		slog.WarnContext(ctx, "revocation marker write failed", "error", err)
	}
	observability.RecordTokenOperation(ctx, "revoke", "success")
	return true, nil
}

// RevokeAllBySession revokes every live row of one session. The affected
// access tokens are read first so each gets its own cache marker.
func (s *TokenService) RevokeAllBySession(ctx context.Context, refreshToken string, userID uint) (int64, error) {
	tokens, err := s.tokenRepo.ListActiveBySession(refreshToken, userID)
	if err != nil {
		observability.RecordTokenOperation(ctx, "revoke_all", "error")
		return 0, fmt.Errorf("list session tokens: %w", err)
	}
	count, err := s.tokenRepo.RevokeAllBySession(refreshToken, userID)
	if err != nil {
		observability.RecordTokenOperation(ctx, "revoke_all", "error")
		return count, fmt.Errorf("revoke session tokens: %w", err)
	}
	for _, t := range tokens {
		if err := s.markers.Mark(ctx, t.AccessToken, s.markerTTL); err != nil {
			slog.WarnContext(ctx, "revocation marker write failed", "error", err)
		}
	}
	observability.RecordTokenOperation(ctx, "revoke_all", "success")
	return count, nil
}

// IsRevoked is cache-first: a present marker is authoritative. On a miss the
// store decides, and a revoked verdict is backfilled into the cache. A valid
// token is never cached, and an unknown token reads as not revoked; the
// validate path is where unknown tokens get rejected.
func (s *TokenService) IsRevoked(ctx context.Context, accessToken string) (bool, error) {
	marked, err := s.markers.IsMarked(ctx, accessToken)
	if err != nil {
		slog.WarnContext(ctx, "revocation marker read failed, falling back to store", "error", err)
	} else if marked {
		observability.RecordRevocationCheck(ctx, "cache", "revoked")
		return true, nil
	}

	token, err := s.tokenRepo.FindByAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			observability.RecordRevocationCheck(ctx, "store", "unknown")
			return false, nil
		}
		observability.RecordRevocationCheck(ctx, "store", "error")
		return false, fmt.Errorf("lookup token: %w", err)
	}
	if !token.IsRevoked {
		observability.RecordRevocationCheck(ctx, "store", "active")
		return false, nil
	}
	if err := s.markers.Mark(ctx, accessToken, s.markerTTL); err != nil {
		slog.WarnContext(ctx, "revocation marker backfill failed", "error", err)
	}
	observability.RecordRevocationCheck(ctx, "store", "revoked")
	return true, nil
}

// Validate resolves an access token to its row, distinguishing unknown,
// revoked and expired credentials for the transport layer.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (*domain.Token, error) {
	token, err := s.tokenRepo.FindByAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if token.IsRevoked {
		return nil, ErrTokenRevoked
	}
	if !time.Now().UTC().Before(token.AccessExpiresAt) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// Cleanup deletes rows whose session ended more than the retention window
// ago. Failures are the scheduler's to log and retry on the next run.
func (s *TokenService) Cleanup(ctx context.Context) (int64, error) {
	horizon := time.Now().UTC().Add(-s.retention)
	count, err := s.tokenRepo.DeleteExpiredBefore(horizon)
	if err != nil {
		observability.RecordTokenOperation(ctx, "cleanup", "error")
		return count, fmt.Errorf("cleanup tokens: %w", err)
	}
	observability.RecordTokenOperation(ctx, "cleanup", "success")
	return count, nil
}

// newOpaqueToken returns a UUID with the dashes stripped: 32 hex chars,
// the historical wire format of this service.
func newOpaqueToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
