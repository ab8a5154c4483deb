package domain

import "time"

// AclGrant is an explicit (subject, resource, permission) authorization,
// distinct from ownership. PermissionID references PermissionDefinition so
// that a typoed permission code can never silently grant access.
type AclGrant struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubjectID    uint       `gorm:"index:idx_acl_subject_resource;not null" json:"subject_id"`
	ResourceType string     `gorm:"size:32;index:idx_acl_subject_resource;not null" json:"resource_type"`
	ResourceID   uint       `gorm:"index:idx_acl_subject_resource;not null" json:"resource_id"`
	PermissionID uint       `gorm:"index:idx_acl_subject_resource;not null" json:"permission_id"`
	GrantedBy    uint       `gorm:"not null" json:"granted_by"`
	GrantedAt    time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`
	IsActive     bool       `gorm:"index;not null;default:true" json:"is_active"`
	RevokedBy    *uint      `json:"revoked_by,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason *string    `gorm:"size:128" json:"revoke_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Effective reports whether the grant currently authorizes its subject.
// Expiry is evaluated at read time; rows are never swept on expiry.
func (g *AclGrant) Effective(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// PermissionDefinition is the static (resourceType, permissionCode) catalog.
// Read-only from this core's perspective.
type PermissionDefinition struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ResourceType   string    `gorm:"size:32;uniqueIndex:idx_perm_def_code;not null" json:"resource_type"`
	PermissionCode string    `gorm:"size:32;uniqueIndex:idx_perm_def_code;not null" json:"permission_code"`
	Level          int       `gorm:"not null;default:0" json:"level"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	AuditActionCheck  = "CHECK"
	AuditActionGrant  = "GRANT"
	AuditActionRevoke = "REVOKE"

	AuditResultSuccess = "SUCCESS"
	AuditResultDenied  = "DENIED"
)

// AuditEntry is an append-only permission audit row. Never updated or
// deleted by this core.
type AuditEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubjectID      uint      `gorm:"index;not null" json:"subject_id"`
	ResourceType   string    `gorm:"size:32;not null" json:"resource_type"`
	ResourceID     uint      `gorm:"not null" json:"resource_id"`
	PermissionCode string    `gorm:"size:32;not null" json:"permission_code"`
	Action         string    `gorm:"size:16;not null" json:"action"`
	Result         string    `gorm:"size:16;not null" json:"result"`
	IPAddress      string    `gorm:"size:64" json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
}
