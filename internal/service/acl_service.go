package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/observability"
	"github.com/collabtask/authcore/internal/repository"
)

// CheckRequest is one (subject, resource, permission) authorization
// question, declared explicitly by the call site.
type CheckRequest struct {
	SubjectID    uint
	ResourceType string
	ResourceID   uint
	Permission   string
	CheckOwner   bool
	IPAddress    string
}

// AclService decides resource-level permissions: ownership first, then ACL
// grants, failing closed on anything it cannot resolve. Only denials are
// written to the audit table on checks; grant and revoke operations record
// their own rows.
type AclService struct {
	grants      repository.AclGrantRepository
	definitions repository.PermissionDefinitionRepository
	audits      repository.AuditRepository
	owners      *OwnerResolverRegistry
}

func NewAclService(grants repository.AclGrantRepository, definitions repository.PermissionDefinitionRepository, audits repository.AuditRepository, owners *OwnerResolverRegistry) *AclService {
	if owners == nil {
		owners = NewOwnerResolverRegistry()
	}
	return &AclService{
		grants:      grants,
		definitions: definitions,
		audits:      audits,
		owners:      owners,
	}
}

func (s *AclService) Owners() *OwnerResolverRegistry { return s.owners }

// Check returns nil when the subject may act and ErrPermissionDenied when
// not. The owner fast path skips both the ACL query and the audit write:
// acting on one's own resources is the common case and stays cheap.
func (s *AclService) Check(ctx context.Context, req CheckRequest) error {
	if req.CheckOwner {
		if resolver, ok := s.owners.Resolve(req.ResourceType); ok {
			isOwner, err := resolver.IsOwner(ctx, req.ResourceID, req.SubjectID)
			if err != nil {
				// Owner lookup failure falls through to the ACL path.
				slog.WarnContext(ctx, "owner resolution failed",
					"resource_type", req.ResourceType,
					"resource_id", req.ResourceID,
					"error", err)
			} else if isOwner {
				observability.RecordACLDecision(ctx, req.ResourceType, "owner_allowed")
				return nil
			}
		}
	}

	def, err := s.definitions.FindActive(req.ResourceType, req.Permission)
	if err != nil {
		if errors.Is(err, repository.ErrPermissionDefinitionNotFound) {
			// Fail closed: an unknown code denies rather than grants.
			s.auditDenied(ctx, req)
			observability.RecordACLDecision(ctx, req.ResourceType, "denied_unknown_permission")
			return ErrPermissionDenied
		}
		return fmt.Errorf("resolve permission definition: %w", err)
	}

	count, err := s.grants.CountEffective(req.SubjectID, req.ResourceType, req.ResourceID, def.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("query acl grants: %w", err)
	}
	if count > 0 {
		observability.RecordACLDecision(ctx, req.ResourceType, "acl_allowed")
		return nil
	}

	s.auditDenied(ctx, req)
	observability.RecordACLDecision(ctx, req.ResourceType, "denied")
	return ErrPermissionDenied
}

// Grant is idempotent: a second identical grant while the first is active
// is a no-op, preserving the at-most-one-active-grant invariant.
func (s *AclService) Grant(ctx context.Context, subjectID uint, resourceType string, resourceID uint, permissionCode string, grantedBy uint) error {
	def, err := s.definitions.FindActive(resourceType, permissionCode)
	if err != nil {
		if errors.Is(err, repository.ErrPermissionDefinitionNotFound) {
			return ErrUnknownPermission
		}
		return fmt.Errorf("resolve permission definition: %w", err)
	}

	exists, err := s.grants.ExistsActive(subjectID, resourceType, resourceID, def.ID)
	if err != nil {
		return fmt.Errorf("check existing grant: %w", err)
	}
	if exists {
		slog.InfoContext(ctx, "grant already active, skipping",
			"subject_id", subjectID,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"permission_code", permissionCode)
		return nil
	}

	grant := &domain.AclGrant{
		SubjectID:    subjectID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		PermissionID: def.ID,
		GrantedBy:    grantedBy,
		GrantedAt:    time.Now().UTC(),
		IsActive:     true,
	}
	if err := s.grants.Create(grant); err != nil {
		return fmt.Errorf("persist grant: %w", err)
	}

	s.audit(ctx, domain.AuditEntry{
		SubjectID:      subjectID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		PermissionCode: permissionCode,
		Action:         domain.AuditActionGrant,
		Result:         domain.AuditResultSuccess,
	})
	slog.InfoContext(ctx, "permission granted",
		"subject_id", subjectID,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"permission_code", permissionCode,
		"granted_by", grantedBy)
	return nil
}

// Revoke deactivates matching grants. A missing definition or a missing
// grant is a no-op, never an error.
func (s *AclService) Revoke(ctx context.Context, subjectID uint, resourceType string, resourceID uint, permissionCode string, revokedBy *uint) error {
	def, err := s.definitions.FindActive(resourceType, permissionCode)
	if err != nil {
		if errors.Is(err, repository.ErrPermissionDefinitionNotFound) {
			slog.WarnContext(ctx, "revoke skipped, permission definition missing",
				"resource_type", resourceType,
				"permission_code", permissionCode)
			return nil
		}
		return fmt.Errorf("resolve permission definition: %w", err)
	}

	count, err := s.grants.Deactivate(subjectID, resourceType, resourceID, def.ID, revokedBy, "revoked")
	if err != nil {
		return fmt.Errorf("deactivate grant: %w", err)
	}
	if count == 0 {
		return nil
	}

	s.audit(ctx, domain.AuditEntry{
		SubjectID:      subjectID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		PermissionCode: permissionCode,
		Action:         domain.AuditActionRevoke,
		Result:         domain.AuditResultSuccess,
	})
	return nil
}

func (s *AclService) auditDenied(ctx context.Context, req CheckRequest) {
	s.audit(ctx, domain.AuditEntry{
		SubjectID:      req.SubjectID,
		ResourceType:   req.ResourceType,
		ResourceID:     req.ResourceID,
		PermissionCode: req.Permission,
		Action:         domain.AuditActionCheck,
		Result:         domain.AuditResultDenied,
		IPAddress:      req.IPAddress,
	})
	observability.Audit(ctx, "acl.check_denied",
		"subject_id", req.SubjectID,
		"resource_type", req.ResourceType,
		"resource_id", req.ResourceID,
		"permission_code", req.Permission)
}

// audit swallows storage failures: a broken audit log must never block the
// decision it records.
func (s *AclService) audit(ctx context.Context, entry domain.AuditEntry) {
	if err := s.audits.Create(&entry); err != nil {
		slog.ErrorContext(ctx, "audit write failed",
			"action", entry.Action,
			"result", entry.Result,
			"error", err)
	}
}
