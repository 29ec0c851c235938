// Package domain holds the user, organization, membership and invitation model.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationCanceled InvitationStatus = "canceled"
)

const (
	LocaleEN = "en"
	LocaleFR = "fr"

	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Preferences are user interface settings. Empty fields are unset.
type Preferences struct {
	Locale string `json:"locale,omitempty"`
	Theme  string `json:"theme,omitempty"`
}

// Merge returns p with every field set in patch overriding p.
func (p Preferences) Merge(patch Preferences) Preferences {
	if patch.Locale != "" {
		p.Locale = patch.Locale
	}
	if patch.Theme != "" {
		p.Theme = patch.Theme
	}
	return p
}

// User is an account. Users are created by sign-up and never deleted here.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Name         *string      `gorm:"type:text" json:"name"`
	Preferences  *Preferences `gorm:"type:text;serializer:json" json:"preferences"`
	PasswordHash *string      `gorm:"type:text" json:"-"`
	// EmailVerifiedAt is set once the address has been confirmed.
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Organization is a tenant. Members and pending invitations are loaded with it.
type Organization struct {
	ID          snowflake.ID             `gorm:"primaryKey" json:"id"`
	Name        string                   `gorm:"type:text;not null" json:"name"`
	Slug        *string                  `gorm:"type:text;uniqueIndex:ux_organizations_slug" json:"slug"`
	Logo        *string                  `gorm:"type:text" json:"logo"`
	Metadata    *string                  `gorm:"type:text" json:"metadata"`
	CreatedAt   time.Time                `gorm:"not null" json:"created_at"`
	Members     []OrganizationMember     `gorm:"foreignKey:OrgID;constraint:OnDelete:CASCADE" json:"members"`
	Invitations []OrganizationInvitation `gorm:"foreignKey:OrgID;constraint:OnDelete:CASCADE" json:"invitations"`
}

func (Organization) TableName() string { return "organizations" }

// Member returns the membership of userID, if any.
func (o *Organization) Member(userID snowflake.ID) (*OrganizationMember, bool) {
	for i := range o.Members {
		if o.Members[i].UserID == userID {
			return &o.Members[i], true
		}
	}
	return nil, false
}

// MemberByID returns the membership with the given id, if any.
func (o *Organization) MemberByID(memberID snowflake.ID) (*OrganizationMember, bool) {
	for i := range o.Members {
		if o.Members[i].ID == memberID {
			return &o.Members[i], true
		}
	}
	return nil, false
}

// MemberByEmail matches the denormalized member email case-insensitively.
func (o *Organization) MemberByEmail(email string) (*OrganizationMember, bool) {
	for i := range o.Members {
		if strings.EqualFold(o.Members[i].Email, email) {
			return &o.Members[i], true
		}
	}
	return nil, false
}

// PendingInvitation returns the pending invitation addressed to email, if any.
func (o *Organization) PendingInvitation(email string) (*OrganizationInvitation, bool) {
	for i := range o.Invitations {
		inv := &o.Invitations[i]
		if inv.Status == InvitationPending && strings.EqualFold(inv.Email, email) {
			return inv, true
		}
	}
	return nil, false
}

// InvitationByID returns the invitation with the given id, if loaded.
func (o *Organization) InvitationByID(invitationID snowflake.ID) (*OrganizationInvitation, bool) {
	for i := range o.Invitations {
		if o.Invitations[i].ID == invitationID {
			return &o.Invitations[i], true
		}
	}
	return nil, false
}

// OwnerCount counts members holding the owner role.
func (o *Organization) OwnerCount() int {
	count := 0
	for _, member := range o.Members {
		if member.Role == RoleOwner {
			count++
		}
	}
	return count
}

// OrganizationMember links a user to an organization with a role. Name and
// email are copied from the user for display.
type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	Name      *string      `gorm:"type:text" json:"name"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

// OrganizationInvitation is an offer of membership sent to an email address.
// Only pending invitations can change status.
type OrganizationInvitation struct {
	ID           snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID     `gorm:"not null;index" json:"org_id"`
	Email        string           `gorm:"type:text;not null;index" json:"email"`
	Role         *Role            `gorm:"type:text" json:"role"`
	Status       InvitationStatus `gorm:"type:text;not null;index" json:"status"`
	ExpiresAt    time.Time        `gorm:"not null" json:"expires_at"`
	InviterID    snowflake.ID     `gorm:"not null" json:"inviter_id"`
	InviterName  *string          `gorm:"type:text" json:"inviter_name"`
	InviterEmail string           `gorm:"type:text;not null" json:"inviter_email"`
	CreatedAt    time.Time        `gorm:"not null" json:"created_at"`
}

func (OrganizationInvitation) TableName() string { return "organization_invitations" }

// EffectiveRole is the role granted on acceptance; a missing role means member.
func (i OrganizationInvitation) EffectiveRole() Role {
	if i.Role == nil || !i.Role.Valid() {
		return RoleMember
	}
	return *i.Role
}

// Expired reports whether the invitation can no longer be acted on at now.
func (i OrganizationInvitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// CurrentUser is the authenticated identity a use case acts for.
type CurrentUser struct {
	ID    snowflake.ID
	Email string
	Name  *string
}
