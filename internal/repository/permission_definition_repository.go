package repository

import (
	"context"
	"errors"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/observability"

	"gorm.io/gorm"
)

var ErrPermissionDefinitionNotFound = errors.New("permission definition not found")

type PermissionDefinitionRepository interface {
	Create(def *domain.PermissionDefinition) error
	FindActive(resourceType, permissionCode string) (*domain.PermissionDefinition, error)
	ListByResourceType(resourceType string) ([]domain.PermissionDefinition, error)
}

type GormPermissionDefinitionRepository struct{ db *gorm.DB }

func NewPermissionDefinitionRepository(db *gorm.DB) PermissionDefinitionRepository {
	return &GormPermissionDefinitionRepository{db: db}
}

func (r *GormPermissionDefinitionRepository) Create(def *domain.PermissionDefinition) error {
	err := r.db.Create(def).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "permission_definition", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "permission_definition", "create", "success")
	return nil
}

func (r *GormPermissionDefinitionRepository) FindActive(resourceType, permissionCode string) (*domain.PermissionDefinition, error) {
	var def domain.PermissionDefinition
	err := r.db.Where("resource_type = ? AND permission_code = ? AND is_active = ?", resourceType, permissionCode, true).
		First(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "permission_definition", "find_active", "not_found")
			return nil, ErrPermissionDefinitionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "permission_definition", "find_active", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "permission_definition", "find_active", "success")
	return &def, nil
}

func (r *GormPermissionDefinitionRepository) ListByResourceType(resourceType string) ([]domain.PermissionDefinition, error) {
	var defs []domain.PermissionDefinition
	err := r.db.Where("resource_type = ?", resourceType).
		Order("level ASC").
		Find(&defs).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "permission_definition", "list_by_resource_type", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "permission_definition", "list_by_resource_type", "success")
	return defs, nil
}
