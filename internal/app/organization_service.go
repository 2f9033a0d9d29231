package app

import (
	"strings"

	"orgrag/internal/model"
)

const maxOrganizationName = 128

type OrganizationService struct {
	orgs OrganizationStore
}

func NewOrganizationService(orgs OrganizationStore) *OrganizationService {
	return &OrganizationService{orgs: orgs}
}

func (s *OrganizationService) Get(orgID uint) (*model.Organization, error) {
	if orgID == 0 {
		return nil, ErrInvalidInput
	}
	org, err := s.orgs.GetByID(orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNone
	}
	return org, nil
}

// Rename changes the organization's name. Names stay unique across
// organizations.
func (s *OrganizationService) Rename(orgID uint, name string) (*model.Organization, error) {
	name = strings.TrimSpace(name)
	if orgID == 0 || name == "" || len([]rune(name)) > maxOrganizationName {
		return nil, ErrInvalidInput
	}
	org, err := s.Get(orgID)
	if err != nil {
		return nil, err
	}
	if org.Name == name {
		return org, nil
	}

	taken, err := s.orgs.GetByName(name)
	if err != nil {
		return nil, err
	}
	if taken != nil && taken.ID != orgID {
		return nil, ErrOrganizationTaken
	}
	if err := s.orgs.UpdateName(orgID, name); err != nil {
		return nil, err
	}
	org.Name = name
	return org, nil
}
