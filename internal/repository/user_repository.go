package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"orgrag/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

// CreateWithOrganization creates a new organization and its first user in
// one transaction, filling user.OrganizationID.
func (r *UserRepository) CreateWithOrganization(org *model.Organization, user *model.User) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("create organization failed: %w", err)
		}
		user.OrganizationID = org.ID
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user failed: %w", err)
		}
		return nil
	})
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.getBy("username", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.getBy("email", email)
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.getBy("id", id)
}

func (r *UserRepository) getBy(column string, value interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.Where(column+" = ?", value).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by %s failed: %w", column, err)
	}
	return &user, nil
}
