package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	// InvitationTTL is how long an invitation stays actionable after issue.
	InvitationTTL = 48 * time.Hour
	// MaxLogoBytes is the largest accepted logo upload (0.5 MB).
	MaxLogoBytes = 512000
)

// LogoKeyPrefix is the storage prefix every logo of orgID is uploaded under.
func LogoKeyPrefix(orgID snowflake.ID) string {
	return "organizations/" + orgID.String() + "/"
}

// AllowedLogoTypes are the accepted logo MIME types.
var AllowedLogoTypes = map[string]string{
	"image/svg+xml": "svg",
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
}

type Service interface {
	UpdateUserPreferences(ctx context.Context, user CurrentUser, req UpdatePreferencesRequest) (*User, error)
	UpdateProfile(ctx context.Context, user CurrentUser, req UpdateProfileRequest) (*User, error)

	ListOrganizations(ctx context.Context, user CurrentUser) ([]Organization, error)
	CreateOrganization(ctx context.Context, user CurrentUser, req CreateOrganizationRequest) (*Organization, error)
	UpdateOrganization(ctx context.Context, user CurrentUser, orgID snowflake.ID, req UpdateOrganizationRequest) (*Organization, error)
	DeleteOrganization(ctx context.Context, user CurrentUser, orgID snowflake.ID) error
	UploadOrganizationLogo(ctx context.Context, user CurrentUser, orgID snowflake.ID, req UploadLogoRequest) (*UploadLogoResult, error)

	// AuthorizeInvite fails the way InviteMember would when user may not
	// invite into orgID at all.
	AuthorizeInvite(ctx context.Context, user CurrentUser, orgID snowflake.ID) error
	InviteMember(ctx context.Context, user CurrentUser, orgID snowflake.ID, req InviteMemberRequest) (*OrganizationInvitation, error)
	CancelInvitation(ctx context.Context, user CurrentUser, orgID, invitationID snowflake.ID) error
	ChangeRole(ctx context.Context, user CurrentUser, orgID, memberID snowflake.ID, role Role) (*OrganizationMember, error)
	RemoveMember(ctx context.Context, user CurrentUser, orgID, memberID snowflake.ID) error

	GetInvitation(ctx context.Context, user CurrentUser, invitationID snowflake.ID) (*InvitationView, error)
	AcceptInvitation(ctx context.Context, user CurrentUser, invitationID snowflake.ID, req RespondInvitationRequest) (*InvitationResponse, error)
	RejectInvitation(ctx context.Context, user CurrentUser, invitationID snowflake.ID, req RespondInvitationRequest) (*InvitationResponse, error)
}

type UpdatePreferencesRequest struct {
	Locale *string
	Theme  *string
}

type UpdateProfileRequest struct {
	Name string
}

type CreateOrganizationRequest struct {
	Name string
	Slug *string
}

type UpdateOrganizationRequest struct {
	Name     *string
	Slug     *string
	Logo     *string
	Metadata *string
}

type UploadLogoRequest struct {
	Data     []byte
	Filename string
	MimeType string
}

type UploadLogoResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

type InviteMemberRequest struct {
	Email string
	Role  Role
}

type RespondInvitationRequest struct {
	// AcceptAnyway confirms acting on an invitation addressed to another email.
	AcceptAnyway bool
}

// InvitationView is an invitation as shown to the invitee.
type InvitationView struct {
	Invitation       OrganizationInvitation `json:"invitation"`
	OrganizationName string                 `json:"organization_name"`
	Expired          bool                   `json:"expired"`
	EmailMatches     bool                   `json:"email_matches"`
}

type InvitationOutcome string

const (
	OutcomeAccepted InvitationOutcome = "accepted"
	OutcomeRejected InvitationOutcome = "rejected"
	// OutcomeEmailMismatch means nothing changed; repeat with AcceptAnyway.
	OutcomeEmailMismatch InvitationOutcome = "email_mismatch"
)

type InvitationResponse struct {
	Outcome      InvitationOutcome   `json:"outcome"`
	InvitedEmail string              `json:"invited_email"`
	Member       *OrganizationMember `json:"member,omitempty"`
}
