package service

import (
	"context"

	"github.com/collabtask/authcore/internal/domain"
)

// TokenValidator is the slice of the token service the transport layer and
// the edge proxy endpoints consume.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (*domain.Token, error)
	IsRevoked(ctx context.Context, accessToken string) (bool, error)
}

// ResourceAuthorizer is the authorization engine as seen by the protected
// operation wrapper.
type ResourceAuthorizer interface {
	Check(ctx context.Context, req CheckRequest) error
}
