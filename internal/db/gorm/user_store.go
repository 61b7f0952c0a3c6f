package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/lishe/pkg/models"
)

// UserStore provides account operations using GORM.
type UserStore struct {
	db   *gorm.DB
	cost int
}

// NewUserStore creates a new user store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{db: store.DB, cost: bcrypt.DefaultCost}
}

// Register creates an account. Emails are stored trimmed and lowercased.
func (s *UserStore) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}

	// INSERT ... ON CONFLICT DO NOTHING: a duplicate leaves the existing row untouched
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).
		Create(u)
	if result.Error != nil {
		return nil, fmt.Errorf("insert user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.ErrUserExists
	}
	return toModelUser(u), nil
}

// Authenticate checks an email and password pair.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u User
	err := s.db.WithContext(ctx).
		Where("email = ?", models.NormalizeEmail(email)).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return toModelUser(&u), nil
}

// GetByEmail returns an account, or nil when there is none.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u User
	err := s.db.WithContext(ctx).
		Where("email = ?", models.NormalizeEmail(email)).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelUser(&u), nil
}

// EnsureAdmin creates the admin account if missing and makes sure it carries the admin flag.
// An existing password is not changed.
func (s *UserStore) EnsureAdmin(ctx context.Context, email, name, password string) (*models.User, error) {
	u, err := s.Register(ctx, email, name, password)
	if err != nil && !errors.Is(err, models.ErrUserExists) {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Update("is_admin", true).Error; err != nil {
		return nil, fmt.Errorf("flag admin: %w", err)
	}

	if u == nil {
		return s.GetByEmail(ctx, email)
	}
	u.IsAdmin = true
	return u, nil
}

// List returns all accounts in registration order.
func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	var rows []User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(rows))
	for i := range rows {
		out = append(out, toModelUser(&rows[i]))
	}
	return out, nil
}
