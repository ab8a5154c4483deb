package service

import (
	"context"
	"sync"
)

// OwnerResolver answers "does this resource belong to this subject" for one
// resource type. Implementations live with the CRUD services that own the
// resource tables; this core only calls them.
type OwnerResolver interface {
	IsOwner(ctx context.Context, resourceID, subjectID uint) (bool, error)
}

type OwnerResolverFunc func(ctx context.Context, resourceID, subjectID uint) (bool, error)

func (f OwnerResolverFunc) IsOwner(ctx context.Context, resourceID, subjectID uint) (bool, error) {
	return f(ctx, resourceID, subjectID)
}

// OwnerResolverRegistry maps resource types to their resolvers. Registration
// is explicit; an unregistered type simply never passes the owner fast path.
type OwnerResolverRegistry struct {
	mu     sync.RWMutex
	byType map[string]OwnerResolver
}

func NewOwnerResolverRegistry() *OwnerResolverRegistry {
	return &OwnerResolverRegistry{byType: make(map[string]OwnerResolver)}
}

func (r *OwnerResolverRegistry) Register(resourceType string, resolver OwnerResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[resourceType] = resolver
}

func (r *OwnerResolverRegistry) Resolve(resourceType string) (OwnerResolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolver, ok := r.byType[resourceType]
	return resolver, ok
}
