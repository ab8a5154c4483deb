package repository

import (
	"testing"
	"time"

	"github.com/collabtask/authcore/internal/domain"
)

func TestAclGrantRepositoryExistsActiveIgnoresExpiry(t *testing.T) {
	repo := newAclGrantRepoForTest(t)

	expired := time.Now().Add(-time.Hour)
	grant := &domain.AclGrant{
		SubjectID:    1,
		ResourceType: "TASK",
		ResourceID:   10,
		PermissionID: 5,
		GrantedBy:    2,
		GrantedAt:    time.Now().Add(-2 * time.Hour),
		ExpiresAt:    &expired,
		IsActive:     true,
	}
	if err := repo.Create(grant); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	exists, err := repo.ExistsActive(1, "TASK", 10, 5)
	if err != nil {
		t.Fatalf("exists active: %v", err)
	}
	if !exists {
		t.Fatal("expired but active row must still count for idempotence")
	}

	count, err := repo.CountEffective(1, "TASK", 10, 5, time.Now())
	if err != nil {
		t.Fatalf("count effective: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired grant must not be effective, got count=%d", count)
	}
}

func TestAclGrantRepositoryCountEffective(t *testing.T) {
	repo := newAclGrantRepoForTest(t)

	open := &domain.AclGrant{
		SubjectID:    1,
		ResourceType: "TASK",
		ResourceID:   10,
		PermissionID: 5,
		GrantedBy:    2,
		GrantedAt:    time.Now(),
		IsActive:     true,
	}
	future := time.Now().Add(time.Hour)
	bounded := &domain.AclGrant{
		SubjectID:    1,
		ResourceType: "TASK",
		ResourceID:   11,
		PermissionID: 5,
		GrantedBy:    2,
		GrantedAt:    time.Now(),
		ExpiresAt:    &future,
		IsActive:     true,
	}
	inactive := &domain.AclGrant{
		SubjectID:    1,
		ResourceType: "TASK",
		ResourceID:   12,
		PermissionID: 5,
		GrantedBy:    2,
		GrantedAt:    time.Now(),
		IsActive:     false,
	}
	for _, g := range []*domain.AclGrant{open, bounded, inactive} {
		if err := repo.Create(g); err != nil {
			t.Fatalf("create grant: %v", err)
		}
	}

	for _, tc := range []struct {
		resourceID uint
		want       int64
	}{
		{10, 1},
		{11, 1},
		{12, 0},
		{13, 0},
	} {
		count, err := repo.CountEffective(1, "TASK", tc.resourceID, 5, time.Now())
		if err != nil {
			t.Fatalf("count effective for resource %d: %v", tc.resourceID, err)
		}
		if count != tc.want {
			t.Fatalf("resource %d: expected %d effective grants, got %d", tc.resourceID, tc.want, count)
		}
	}
}

func TestAclGrantRepositoryDeactivate(t *testing.T) {
	repo := newAclGrantRepoForTest(t)

	grant := &domain.AclGrant{
		SubjectID:    1,
		ResourceType: "TASK",
		ResourceID:   10,
		PermissionID: 5,
		GrantedBy:    2,
		GrantedAt:    time.Now(),
		IsActive:     true,
	}
	if err := repo.Create(grant); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	revoker := uint(2)
	count, err := repo.Deactivate(1, "TASK", 10, 5, &revoker, "revoked")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 deactivated row, got %d", count)
	}

	count, err = repo.Deactivate(1, "TASK", 10, 5, &revoker, "revoked")
	if err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows on repeat deactivate, got %d", count)
	}

	exists, err := repo.ExistsActive(1, "TASK", 10, 5)
	if err != nil {
		t.Fatalf("exists active: %v", err)
	}
	if exists {
		t.Fatal("deactivated grant must not read as active")
	}
}

func newAclGrantRepoForTest(t *testing.T) AclGrantRepository {
	t.Helper()
	return NewAclGrantRepository(newDBForTest(t, &domain.AclGrant{}))
}
