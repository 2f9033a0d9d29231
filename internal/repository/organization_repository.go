package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"orgrag/internal/model"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) GetByID(id uint) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.First(&org, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query organization by id failed: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) GetByName(name string) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.Where("name = ?", name).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query organization by name failed: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) UpdateName(id uint, name string) error {
	if err := r.db.Model(&model.Organization{ID: id}).Update("name", name).Error; err != nil {
		return fmt.Errorf("update organization failed: %w", err)
	}
	return nil
}
