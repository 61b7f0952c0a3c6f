package models

import (
	"errors"
	"strings"
	"time"
)

// User account errors.
var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is a registered account. The password hash never leaves the store layer.
type User struct {
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ID        int64     `json:"id"`
	IsAdmin   bool      `json:"is_admin"`
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
