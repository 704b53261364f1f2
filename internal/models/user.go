package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         acl.Role  `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks basic user fields
func (u *User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email")
	}
	if u.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}
	if len(u.DisplayName) < 2 || len(u.DisplayName) > 100 {
		return fmt.Errorf("display name length invalid")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role")
	}
	return nil
}

// Actor is the caller of an operation, resolved from the bearer token by the
// HTTP layer. The zero value is an anonymous caller.
type Actor struct {
	UserID *uuid.UUID
	Email  string
	Role   acl.Role
}

func (a Actor) Authenticated() bool {
	return a.UserID != nil
}

type CreateUserRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateRoleRequest struct {
	Role acl.Role `json:"role" binding:"required"`
}
