package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	ErrUserNotFound       = errors.New("users: user not found")
	ErrInvalidUser        = errors.New("users: invalid user")
	ErrEmailTaken         = errors.New("users: email already registered")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	HashCost int
}

// CreateUserInput carries the fields needed to register an account.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Service manages accounts, password login and display name lookups.
type Service struct {
	db       *gorm.DB
	hashCost int
	names    sync.Map
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("users: bcrypt cost %d out of range", cost)
	}
	return &Service{
		db:       cfg.Database,
		hashCost: cost,
	}, nil
}

// Create registers a new account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, input CreateUserInput) (User, error) {
	name := normalize(input.Name)
	email := NormalizeEmail(input.Email)
	if name == "" || email == "" || !strings.Contains(email, "@") || input.Password == "" {
		return User{}, ErrInvalidUser
	}
	role := strings.ToUpper(normalize(input.Role))
	switch role {
	case "":
		role = RoleMember
	case RoleAdmin, RoleMember:
	default:
		return User{}, ErrInvalidUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	user := User{Name: name, Email: email, PasswordHash: string(hash), Role: role}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrEmailTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return User{}, err
	}
	s.names.Store(user.ID, user.Name)
	return user, nil
}

// Authenticate verifies an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	s.names.Store(user.ID, user.Name)
	return user, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// DisplayName resolves the name shown in notifications, falling back to
// "User <id>" when the account cannot be loaded.
func (s *Service) DisplayName(ctx context.Context, userID int64) string {
	if cached, ok := s.names.Load(userID); ok {
		if name, ok := cached.(string); ok {
			return name
		}
	}
	user, err := s.Get(ctx, userID)
	if err != nil || user.Name == "" {
		return fmt.Sprintf("User %d", userID)
	}
	s.names.Store(userID, user.Name)
	return user.Name
}
