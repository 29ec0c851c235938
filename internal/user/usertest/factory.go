// Package usertest builds user, organization, member and invitation fixtures.
package usertest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/user/domain"
)

// Epoch is the creation time of the first fixture. Each later fixture is one
// second newer so ordering by creation time is stable.
var Epoch = time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)

// Factory hands out fixtures with unique ids, emails and slugs. A Factory is
// not safe for concurrent use.
type Factory struct {
	t    testing.TB
	node *snowflake.Node
	seq  int
}

func NewFactory(t testing.TB) *Factory {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return &Factory{t: t, node: node}
}

func (f *Factory) next() (int, time.Time) {
	f.seq++
	return f.seq, Epoch.Add(time.Duration(f.seq) * time.Second)
}

// ID returns a fresh snowflake id.
func (f *Factory) ID() snowflake.ID {
	return f.node.Generate()
}

func (f *Factory) User(opts ...func(*domain.User)) domain.User {
	seq, at := f.next()
	name := fmt.Sprintf("User %d", seq)
	user := domain.User{
		ID:        f.node.Generate(),
		Email:     fmt.Sprintf("user%d@example.com", seq),
		Name:      &name,
		CreatedAt: at,
		UpdatedAt: at,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

func WithEmail(email string) func(*domain.User) {
	return func(u *domain.User) { u.Email = email }
}

func WithPreferences(prefs domain.Preferences) func(*domain.User) {
	return func(u *domain.User) { u.Preferences = &prefs }
}

// Organization returns an organization owned by owner together with the
// owner's membership.
func (f *Factory) Organization(owner domain.User) (domain.Organization, domain.OrganizationMember) {
	seq, at := f.next()
	slug := fmt.Sprintf("org-%d", seq)
	org := domain.Organization{
		ID:        f.node.Generate(),
		Name:      fmt.Sprintf("Org %d", seq),
		Slug:      &slug,
		CreatedAt: at,
	}
	return org, f.Member(org, owner, domain.RoleOwner)
}

func (f *Factory) Member(org domain.Organization, user domain.User, role domain.Role) domain.OrganizationMember {
	_, at := f.next()
	return domain.OrganizationMember{
		ID:        f.node.Generate(),
		OrgID:     org.ID,
		UserID:    user.ID,
		Role:      role,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: at,
	}
}

// Invitation returns a pending invitation that expires InvitationTTL after it
// was created.
func (f *Factory) Invitation(org domain.Organization, inviter domain.User, email string, role domain.Role) domain.OrganizationInvitation {
	_, at := f.next()
	return domain.OrganizationInvitation{
		ID:           f.node.Generate(),
		OrgID:        org.ID,
		Email:        strings.ToLower(email),
		Role:         &role,
		Status:       domain.InvitationPending,
		ExpiresAt:    at.Add(domain.InvitationTTL),
		InviterID:    inviter.ID,
		InviterName:  inviter.Name,
		InviterEmail: inviter.Email,
		CreatedAt:    at,
	}
}

func Current(user domain.User) domain.CurrentUser {
	return domain.CurrentUser{ID: user.ID, Email: user.Email, Name: user.Name}
}

// Seed persists users, organizations with their owners, extra members and
// invitations through repo, failing the test on the first error.
type Seed struct {
	Users         []domain.User
	Organizations []SeedOrganization
	Members       []domain.OrganizationMember
	Invitations   []domain.OrganizationInvitation
}

type SeedOrganization struct {
	Organization domain.Organization
	Owner        domain.OrganizationMember
}

func (s Seed) Apply(t testing.TB, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()

	for i := range s.Users {
		if err := repo.CreateUser(ctx, &s.Users[i]); err != nil {
			t.Fatalf("seed user %s: %v", s.Users[i].Email, err)
		}
	}
	for i := range s.Organizations {
		entry := s.Organizations[i]
		if err := repo.CreateOrganization(ctx, &entry.Organization, &entry.Owner); err != nil {
			t.Fatalf("seed organization %s: %v", entry.Organization.Name, err)
		}
	}
	for i := range s.Members {
		if err := repo.AddMember(ctx, &s.Members[i]); err != nil {
			t.Fatalf("seed member %s: %v", s.Members[i].Email, err)
		}
	}
	for i := range s.Invitations {
		if err := repo.CreateInvitation(ctx, &s.Invitations[i]); err != nil {
			t.Fatalf("seed invitation %s: %v", s.Invitations[i].Email, err)
		}
	}
}
