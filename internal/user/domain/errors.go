package domain

import "errors"

// Not found. ErrOrganizationNotFound is also returned when the caller is not a
// member, so outsiders cannot tell which organizations exist.
var (
	ErrUserNotFound         = errors.New("user_not_found")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrMemberNotFound       = errors.New("member_not_found")
	ErrInvitationNotFound   = errors.New("invitation_not_found")
)

// Forbidden.
var (
	ErrOnlyOwnersCanUpdate     = errors.New("only_owners_can_update")
	ErrOnlyOwnersCanDelete     = errors.New("only_owners_can_delete")
	ErrOnlyOwnersCanUploadLogo = errors.New("only_owners_can_upload_logo")
	ErrInsufficientRole        = errors.New("insufficient_role")
	ErrLastOwner               = errors.New("last_owner")
	ErrCannotRemoveSelf        = errors.New("cannot_remove_self")
	ErrCannotInviteSelf        = errors.New("cannot_invite_self")
)

// Conflict.
var (
	ErrAlreadyMember            = errors.New("already_member")
	ErrInvitationAlreadyPending = errors.New("invitation_already_pending")
	ErrInvitationNotPending     = errors.New("invitation_not_pending")
	ErrSlugTaken                = errors.New("slug_taken")
	ErrEmailTaken               = errors.New("email_taken")
)

// Validation.
var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidSlug     = errors.New("invalid_slug")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrInvalidLocale   = errors.New("invalid_locale")
	ErrInvalidTheme    = errors.New("invalid_theme")
	ErrInvalidFileType = errors.New("invalid_file_type")
	ErrFileTooLarge    = errors.New("file_too_large")
	// ErrInvalidLogo is a stored logo URL that belongs to another organization.
	ErrInvalidLogo = errors.New("invalid_logo")
)

var ErrInvitationExpired = errors.New("invitation_expired")
