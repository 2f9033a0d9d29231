package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"orgrag/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByOrganization(orgID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("organization_id = ?", orgID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// ExistsByFilename matches the filename exactly, byte for byte, whatever the
// column collation.
func (r *DocumentRepository) ExistsByFilename(orgID uint, filename string) (bool, error) {
	var names []string
	if err := r.db.Model(&model.Document{}).
		Where("organization_id = ? AND filename = ?", orgID, filename).
		Pluck("filename", &names).Error; err != nil {
		return false, fmt.Errorf("query document by filename failed: %w", err)
	}
	for _, name := range names {
		if name == filename {
			return true, nil
		}
	}
	return false, nil
}

func (r *DocumentRepository) GetByIDAndOrganization(id, orgID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND organization_id = ?", id, orgID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) DeleteByIDAndOrganization(id, orgID uint) error {
	if err := r.db.Where("id = ? AND organization_id = ?", id, orgID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
