package authorization

import (
	"context"
	"errors"

	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether a membership role may perform an action on an
// object of an organization.
type Service interface {
	Authorize(ctx context.Context, role userdomain.Role, object string, action string) error
}
