package repository

import (
	"context"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/observability"

	"gorm.io/gorm"
)

// AuditRepository appends permission audit rows. Nothing in this core ever
// updates or deletes them.
type AuditRepository interface {
	Create(entry *domain.AuditEntry) error
	ListBySubject(subjectID uint) ([]domain.AuditEntry, error)
}

type GormAuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &GormAuditRepository{db: db} }

func (r *GormAuditRepository) Create(entry *domain.AuditEntry) error {
	err := r.db.Create(entry).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "audit_entry", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "audit_entry", "create", "success")
	return nil
}

func (r *GormAuditRepository) ListBySubject(subjectID uint) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := r.db.Where("subject_id = ?", subjectID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "audit_entry", "list_by_subject", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "audit_entry", "list_by_subject", "success")
	return entries, nil
}
