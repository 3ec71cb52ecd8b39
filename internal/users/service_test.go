package users

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestCreateAndAuthenticate(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateUserInput{Name: " Alice ", Email: "Alice@Example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == 0 || created.Name != "Alice" || created.Email != "alice@example.com" || created.Role != RoleMember {
		t.Fatalf("unexpected user %+v", created)
	}
	if created.PasswordHash == "hunter2" {
		t.Fatalf("password must be hashed")
	}

	authenticated, err := service.Authenticate(ctx, "ALICE@example.com ", "hunter2")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if authenticated.ID != created.ID {
		t.Fatalf("expected same account, got %d", authenticated.ID)
	}

	if _, err := service.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	if _, err := service.Create(ctx, CreateUserInput{Name: "Alice", Email: "alice@example.com", Password: "x"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := service.Create(ctx, CreateUserInput{Name: "Other", Email: "ALICE@example.com", Password: "y"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	service, _ := newTestService(t)
	inputs := []CreateUserInput{
		{Name: "", Email: "a@example.com", Password: "x"},
		{Name: "A", Email: "not-an-email", Password: "x"},
		{Name: "A", Email: "a@example.com", Password: ""},
		{Name: "A", Email: "a@example.com", Password: "x", Role: "OWNER"},
	}
	for _, input := range inputs {
		if _, err := service.Create(context.Background(), input); !errors.Is(err, ErrInvalidUser) {
			t.Fatalf("expected invalid user for %+v, got %v", input, err)
		}
	}
}

func TestDisplayNameCachesAndFallsBack(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	user := User{Name: "Bob", Email: "bob@example.com", PasswordHash: "x", Role: RoleMember}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if name := service.DisplayName(ctx, user.ID); name != "Bob" {
		t.Fatalf("expected Bob, got %q", name)
	}
	if err := db.Model(&User{}).Where("id = ?", user.ID).Update("name", "Robert").Error; err != nil {
		t.Fatalf("rename: %v", err)
	}
	if name := service.DisplayName(ctx, user.ID); name != "Bob" {
		t.Fatalf("expected cached name, got %q", name)
	}
	if name := service.DisplayName(ctx, 9999); name != "User 9999" {
		t.Fatalf("expected fallback name, got %q", name)
	}
	if _, err := service.Get(ctx, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected error without database")
	}
}
