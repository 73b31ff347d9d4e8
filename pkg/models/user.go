package models

import (
    "github.com/elad014/stockwatch/pkg/validation"
)

// User roles. user_type is an integer column for parity with the
// historical schema: 0 is a regular user, 1 is a manager.
const (
    RoleUser    = 0
    RoleManager = 1
)

// User holds credentials and the role flag distinguishing regular users
// from managers. PasswordHash is a bcrypt hash, never the raw password.
type User struct {
    ID           int64  `json:"id"`
    FullName     string `json:"full_name"`
    Email        string `json:"email"`
    PhoneNumber  string `json:"phone_number,omitempty"`
    Country      string `json:"country,omitempty"`
    PasswordHash string `json:"-"`
    UserType     int    `json:"user_type"`
}

// IsManager reports whether the user may reach manager endpoints.
func (u User) IsManager() bool {
    return u.UserType == RoleManager
}

// SignupRequest is the account-creation payload.
type SignupRequest struct {
    FullName    string `json:"full_name" validate:"required,min=2,max=100"`
    Email       string `json:"email" validate:"required,email"`
    PhoneNumber string `json:"phone_number" validate:"omitempty,min=7,max=20"`
    Country     string `json:"country" validate:"omitempty,country"`
    Password    string `json:"password" validate:"required,min=8,max=72"`
}

// Validate validates the SignupRequest struct
func (r SignupRequest) Validate() error {
    if errors := validation.ValidateStruct(r); len(errors) > 0 {
        return errors
    }
    return nil
}

// Sanitize cleans the free-text signup fields.
func (r *SignupRequest) Sanitize() {
    r.FullName = validation.SanitizeString(r.FullName)
    r.Email = validation.SanitizeString(r.Email)
    r.PhoneNumber = validation.SanitizeString(r.PhoneNumber)
    r.Country = validation.SanitizeString(r.Country)
}

// LoginRequest is the credentials payload.
type LoginRequest struct {
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required"`
}

// Sanitize cleans the free-text login fields.
func (r *LoginRequest) Sanitize() {
    r.Email = validation.SanitizeString(r.Email)
}

// Validate validates the LoginRequest struct
func (r LoginRequest) Validate() error {
    if errors := validation.ValidateStruct(r); len(errors) > 0 {
        return errors
    }
    return nil
}
