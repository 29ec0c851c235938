package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Queries is the read side of the user store.
type Queries interface {
	GetUser(ctx context.Context, userID snowflake.ID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetCurrentUserOrganizations returns every organization userID belongs
	// to, each with its members and pending invitations.
	GetCurrentUserOrganizations(ctx context.Context, userID snowflake.ID) ([]Organization, error)
	// GetInvitation returns the invitation with the name of its organization.
	GetInvitation(ctx context.Context, invitationID snowflake.ID) (*OrganizationInvitation, string, error)
}

// OrganizationPatch lists the organization columns to overwrite; nil fields
// are left untouched.
type OrganizationPatch struct {
	Name     *string
	Slug     *string
	Logo     *string
	Metadata *string
}

// Repository is the write side of the user store.
type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	UpdatePreferences(ctx context.Context, userID snowflake.ID, prefs Preferences) (*User, error)
	UpdateProfile(ctx context.Context, userID snowflake.ID, name *string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID snowflake.ID, hash string) error
	MarkEmailVerified(ctx context.Context, userID snowflake.ID, at time.Time) error

	CreateOrganization(ctx context.Context, org *Organization, owner *OrganizationMember) error
	UpdateOrganization(ctx context.Context, orgID snowflake.ID, patch OrganizationPatch) (*Organization, error)
	DeleteOrganization(ctx context.Context, orgID snowflake.ID) error

	AddMember(ctx context.Context, member *OrganizationMember) error
	UpdateMemberRole(ctx context.Context, memberID snowflake.ID, role Role) error
	RemoveMember(ctx context.Context, memberID snowflake.ID) error

	CreateInvitation(ctx context.Context, invitation *OrganizationInvitation) error
	// TransitionInvitation moves a pending invitation to a terminal status and
	// returns ErrInvitationNotPending when it is no longer pending.
	TransitionInvitation(ctx context.Context, invitationID snowflake.ID, to InvitationStatus) error
}
