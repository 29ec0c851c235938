// Package domain contains core types for the auth service.
package domain

import (
	"context"
	"time"

	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

const MinPasswordLength = 8

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*LoginResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// Authenticate resolves a session token to the user it was issued for.
	Authenticate(ctx context.Context, rawToken string) (*userdomain.CurrentUser, error)
	ChangePassword(ctx context.Context, user userdomain.CurrentUser, req ChangePasswordRequest) error

	VerifyEmail(ctx context.Context, rawToken string) error
	// RequestPasswordReset mails a reset link when the address is known and
	// succeeds silently otherwise.
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
}

type SignupRequest struct {
	Email    string
	Password string
	Name     string
}

type LoginRequest struct {
	Email    string
	Password string
}

type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
}

type ResetPasswordRequest struct {
	Token    string
	Password string
}

type LoginResult struct {
	User      userdomain.User `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}
