package app

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"orgrag/internal/model"
	"orgrag/internal/pkg/jwtutil"
)

type AuthService struct {
	users         UserStore
	orgs          OrganizationStore
	jwtSecret     string
	jwtExpiration time.Duration
}

// RegisterInput creates OrganizationName with the new user as its admin.
// Members of an existing organization are added by its admin via AddUser.
type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	OrganizationName string
}

// AddUserInput adds a user to the actor's own organization. Role defaults
// to member.
type AddUserInput struct {
	ActorID  uint
	Username string
	Email    string
	Password string
	Role     string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(users UserStore, orgs OrganizationStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		orgs:          orgs,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	orgName := strings.TrimSpace(input.OrganizationName)
	if orgName == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.newUser(input.Username, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	existingOrg, err := s.orgs.GetByName(orgName)
	if err != nil {
		return nil, err
	}
	if existingOrg != nil {
		return nil, ErrOrganizationTaken
	}
	user.Role = model.RoleAdmin
	if err := s.users.CreateWithOrganization(&model.Organization{Name: orgName}, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// AddUser lets an organization admin create another account in that
// organization. The new user logs in on their own; no token is issued.
func (s *AuthService) AddUser(input AddUserInput) (*model.User, error) {
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = model.RoleMember
	}
	if input.ActorID == 0 || (role != model.RoleMember && role != model.RoleAdmin) {
		return nil, ErrInvalidInput
	}

	actor, err := s.users.GetByID(input.ActorID)
	if err != nil {
		return nil, err
	}
	if actor == nil || actor.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	org, err := s.orgs.GetByID(actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNone
	}

	user, err := s.newUser(input.Username, input.Email, input.Password)
	if err != nil {
		return nil, err
	}
	user.OrganizationID = org.ID
	user.Role = role
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// newUser validates credentials, checks they are free and hashes the
// password. The caller sets organization and role.
func (s *AuthService) newUser(username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)
	if username == "" || email == "" || len(password) < 8 {
		return nil, ErrInvalidInput
	}

	existingByName, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}

	existingByEmail, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}
	return &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}, nil
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	return s.issue(user)
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.users.GetByID(id)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.OrganizationID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}
