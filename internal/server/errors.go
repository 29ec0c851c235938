package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/tasklane/internal/auth/domain"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var notFoundErrors = []error{
	ErrNotFound,
	userdomain.ErrUserNotFound,
	userdomain.ErrOrganizationNotFound,
	userdomain.ErrMemberNotFound,
	userdomain.ErrInvitationNotFound,
	taskdomain.ErrTaskNotFound,
}

var forbiddenErrors = []error{
	ErrForbidden,
	userdomain.ErrOnlyOwnersCanUpdate,
	userdomain.ErrOnlyOwnersCanDelete,
	userdomain.ErrOnlyOwnersCanUploadLogo,
	userdomain.ErrInsufficientRole,
	userdomain.ErrLastOwner,
	userdomain.ErrCannotRemoveSelf,
	userdomain.ErrCannotInviteSelf,
	taskdomain.ErrNotYourTask,
}

var conflictErrors = []error{
	userdomain.ErrAlreadyMember,
	userdomain.ErrInvitationAlreadyPending,
	userdomain.ErrInvitationNotPending,
	userdomain.ErrSlugTaken,
	userdomain.ErrEmailTaken,
	taskdomain.ErrTaskExists,
	authdomain.ErrPasswordUnchanged,
}

var validationErrors = []error{
	ErrInvalidRequest,
	userdomain.ErrInvalidName,
	userdomain.ErrInvalidSlug,
	userdomain.ErrInvalidEmail,
	userdomain.ErrInvalidRole,
	userdomain.ErrInvalidLocale,
	userdomain.ErrInvalidTheme,
	userdomain.ErrInvalidFileType,
	userdomain.ErrFileTooLarge,
	userdomain.ErrInvalidLogo,
	taskdomain.ErrInvalidDescription,
	taskdomain.ErrInvalidTaskID,
	authdomain.ErrWeakPassword,
	authdomain.ErrInvalidToken,
	authdomain.ErrTokenExpired,
}

var unauthorizedErrors = []error{
	ErrUnauthorized,
	authdomain.ErrInvalidCredentials,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isAny(err, validationErrors):
		code := rootCode(err, validationErrors)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case isAny(err, unauthorizedErrors):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: rootCode(err, unauthorizedErrors),
		}
	case isAny(err, forbiddenErrors):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: rootCode(err, forbiddenErrors),
		}
	case isAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: rootCode(err, notFoundErrors),
		}
	case isAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: rootCode(err, conflictErrors),
		}
	case errors.Is(err, userdomain.ErrInvitationExpired):
		return http.StatusGone, errorPayload{
			Type:    "expired",
			Message: userdomain.ErrInvitationExpired.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog is the error_type field of the request log line.
func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// rootCode returns the sentinel text of the first matching target, so wrapped
// errors never leak their context to clients.
func rootCode(err error, targets []error) string {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "weak_password":
		return "password"
	case "file_too_large":
		return "file"
	case "invalid_token", "token_expired":
		return "token"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "weak_password":
		return "password is too short"
	case "file_too_large":
		return "file is too large"
	case "token_expired":
		return "token has expired"
	default:
		return "invalid value"
	}
}
