package repository

import (
	"context"
	"time"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/observability"

	"gorm.io/gorm"
)

type AclGrantRepository interface {
	Create(g *domain.AclGrant) error
	ExistsActive(subjectID uint, resourceType string, resourceID, permissionID uint) (bool, error)
	CountEffective(subjectID uint, resourceType string, resourceID, permissionID uint, now time.Time) (int64, error)
	Deactivate(subjectID uint, resourceType string, resourceID, permissionID uint, revokedBy *uint, reason string) (int64, error)
}

type GormAclGrantRepository struct{ db *gorm.DB }

func NewAclGrantRepository(db *gorm.DB) AclGrantRepository { return &GormAclGrantRepository{db: db} }

func (r *GormAclGrantRepository) Create(g *domain.AclGrant) error {
	err := r.db.Create(g).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "acl_grant", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "acl_grant", "create", "success")
	return nil
}

// ExistsActive ignores expiry on purpose: the grant idempotence check matches
// the active-row uniqueness invariant, not read-time effectiveness.
func (r *GormAclGrantRepository) ExistsActive(subjectID uint, resourceType string, resourceID, permissionID uint) (bool, error) {
	var count int64
	err := r.db.Model(&domain.AclGrant{}).
		Where("subject_id = ? AND resource_type = ? AND resource_id = ? AND permission_id = ? AND is_active = ?",
			subjectID, resourceType, resourceID, permissionID, true).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "acl_grant", "exists_active", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "acl_grant", "exists_active", "success")
	return count > 0, nil
}

func (r *GormAclGrantRepository) CountEffective(subjectID uint, resourceType string, resourceID, permissionID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.AclGrant{}).
		Where("subject_id = ? AND resource_type = ? AND resource_id = ? AND permission_id = ? AND is_active = ?",
			subjectID, resourceType, resourceID, permissionID, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "acl_grant", "count_effective", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "acl_grant", "count_effective", "success")
	return count, nil
}

func (r *GormAclGrantRepository) Deactivate(subjectID uint, resourceType string, resourceID, permissionID uint, revokedBy *uint, reason string) (int64, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"is_active":     false,
		"revoked_at":    now,
		"revoke_reason": reason,
	}
	if revokedBy != nil {
		updates["revoked_by"] = *revokedBy
	}
	res := r.db.Model(&domain.AclGrant{}).
		Where("subject_id = ? AND resource_type = ? AND resource_id = ? AND permission_id = ? AND is_active = ?",
			subjectID, resourceType, resourceID, permissionID, true).
		Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "acl_grant", "deactivate", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "acl_grant", "deactivate", "success")
	return res.RowsAffected, nil
}
