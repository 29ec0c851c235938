package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/tasklane/internal/event"
	"github.com/smallbiznis/tasklane/internal/providers/email"
	"github.com/smallbiznis/tasklane/internal/user/domain"
	"github.com/smallbiznis/tasklane/internal/user/usertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) expectInvitationEmail(to, locale string) {
	f.mailer.On("SendInvitation", mock.Anything, to, locale, mock.AnythingOfType("email.InvitationData")).Return(nil).Once()
}

func pendingFor(org domain.Organization, addr string) int {
	count := 0
	for _, inv := range org.Invitations {
		if inv.Status == domain.InvitationPending && inv.Email == addr {
			count++
		}
	}
	return count
}

func TestInviteMemberTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)
	me := usertest.Current(alice)

	f.expectInvitationEmail("bob@example.com", "")
	invitation, err := f.svc.InviteMember(ctx, me, org.ID, domain.InviteMemberRequest{Email: "Bob@Example.com", Role: domain.RoleMember})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", invitation.Email)
	assert.Equal(t, domain.InvitationPending, invitation.Status)
	assert.Equal(t, f.clock.Now().Add(48*time.Hour), invitation.ExpiresAt)

	_, err = f.svc.InviteMember(ctx, me, org.ID, domain.InviteMemberRequest{Email: "BOB@example.com", Role: domain.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrInvitationAlreadyPending)

	assert.Equal(t, 1, pendingFor(f.organization(t, alice, org.ID), "bob@example.com"))
	assert.Equal(t, []string{event.MemberInvitedTopic}, f.events.topics())
}

func TestInviteMemberReplacesExpiredInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	org, _ := f.team(t, alice, nil)
	me := usertest.Current(alice)

	f.mailer.On("SendInvitation", mock.Anything, "bob@example.com", "", mock.Anything).Return(nil).Twice()
	first, err := f.svc.InviteMember(ctx, me, org.ID, domain.InviteMemberRequest{Email: "bob@example.com"})
	require.NoError(t, err)

	f.clock.Advance(domain.InvitationTTL)
	second, err := f.svc.InviteMember(ctx, me, org.ID, domain.InviteMemberRequest{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	loaded := f.organization(t, alice, org.ID)
	require.Len(t, loaded.Invitations, 1)
	assert.Equal(t, second.ID, loaded.Invitations[0].ID)
}

func TestInviteMemberRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User(usertest.WithEmail("alice@example.com"))
	admin := f.factory.User()
	plain := f.factory.User(usertest.WithEmail("plain@example.com"))
	org, _ := f.team(t, alice, map[*domain.User]domain.Role{&admin: domain.RoleAdmin, &plain: domain.RoleMember})

	cases := []struct {
		name string
		user domain.User
		req  domain.InviteMemberRequest
		want error
	}{
		{"self", alice, domain.InviteMemberRequest{Email: "ALICE@example.com"}, domain.ErrCannotInviteSelf},
		{"existing member", alice, domain.InviteMemberRequest{Email: "Plain@Example.com"}, domain.ErrAlreadyMember},
		{"bad email", alice, domain.InviteMemberRequest{Email: "not-an-email"}, domain.ErrInvalidEmail},
		{"bad role", alice, domain.InviteMemberRequest{Email: "x@example.com", Role: "root"}, domain.ErrInvalidRole},
		{"member cannot invite", plain, domain.InviteMemberRequest{Email: "x@example.com"}, domain.ErrInsufficientRole},
		{"admin cannot grant owner", admin, domain.InviteMemberRequest{Email: "x@example.com", Role: domain.RoleOwner}, domain.ErrInsufficientRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.InviteMember(ctx, usertest.Current(tc.user), org.ID, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	f.expectInvitationEmail("x@example.com", "")
	invitation, err := f.svc.InviteMember(ctx, usertest.Current(admin), org.ID, domain.InviteMemberRequest{Email: "x@example.com", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, invitation.EffectiveRole())
}

func TestInviteMemberEmailUsesInviterLocaleAndFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User(usertest.WithPreferences(domain.Preferences{Locale: domain.LocaleFR}))
	org, _ := f.team(t, alice, nil)

	f.mailer.On("SendInvitation", mock.Anything, "bob@example.com", domain.LocaleFR, mock.MatchedBy(func(data email.InvitationData) bool {
		return data.OrganizationName == org.Name && data.InviterEmail == alice.Email && data.Role == "member"
	})).Return(errors.New("smtp down")).Once()

	_, err := f.svc.InviteMember(ctx, usertest.Current(alice), org.ID, domain.InviteMemberRequest{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, pendingFor(f.organization(t, alice, org.ID), "bob@example.com"))
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	plain := f.factory.User()
	org, _ := f.team(t, alice, map[*domain.User]domain.Role{&plain: domain.RoleMember})
	invitation := f.factory.Invitation(org, alice, "bob@example.com", domain.RoleMember)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	err := f.svc.CancelInvitation(ctx, usertest.Current(plain), org.ID, invitation.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	require.NoError(t, f.svc.CancelInvitation(ctx, usertest.Current(alice), org.ID, invitation.ID))
	assert.ErrorIs(t, f.svc.CancelInvitation(ctx, usertest.Current(alice), org.ID, invitation.ID), domain.ErrInvitationNotPending)
	assert.Empty(t, f.organization(t, alice, org.ID).Invitations)

	view, err := f.svc.GetInvitation(ctx, usertest.Current(alice), invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationCanceled, view.Invitation.Status)
}

func TestCancelInvitationOfAnotherOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	mallory := f.factory.User()
	org, _ := f.team(t, alice, nil)
	other, _ := f.team(t, mallory, nil)
	invitation := f.factory.Invitation(org, alice, "bob@example.com", domain.RoleMember)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	err := f.svc.CancelInvitation(ctx, usertest.Current(mallory), other.ID, invitation.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	assert.Len(t, f.organization(t, alice, org.ID).Invitations, 1)
}

func TestSoleOwnerCannotBeDemotedOrRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	admin := f.factory.User()
	org, members := f.team(t, alice, map[*domain.User]domain.Role{&admin: domain.RoleAdmin})
	owner := members[alice.ID]
	before := f.organization(t, alice, org.ID).Members

	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleMember} {
		_, err := f.svc.ChangeRole(ctx, usertest.Current(alice), org.ID, owner.ID, role)
		assert.ErrorIs(t, err, domain.ErrLastOwner)
	}
	_, err := f.svc.ChangeRole(ctx, usertest.Current(admin), org.ID, owner.ID, domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)
	err = f.svc.RemoveMember(ctx, usertest.Current(admin), org.ID, owner.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)
	err = f.svc.RemoveMember(ctx, usertest.Current(alice), org.ID, owner.ID)
	assert.ErrorIs(t, err, domain.ErrCannotRemoveSelf)

	assert.Equal(t, before, f.organization(t, alice, org.ID).Members)
}

func TestOwnerCanStepDownWhenAnotherOwnerExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	org, members := f.team(t, alice, map[*domain.User]domain.Role{&bob: domain.RoleOwner})

	member, err := f.svc.ChangeRole(ctx, usertest.Current(bob), org.ID, members[alice.ID].ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, member.Role)

	_, err = f.svc.ChangeRole(ctx, usertest.Current(bob), org.ID, members[bob.ID].ID, domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrLastOwner)
}

func TestAdminActsOnPlainMembersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	admin := f.factory.User()
	other := f.factory.User()
	plain := f.factory.User()
	org, members := f.team(t, alice, map[*domain.User]domain.Role{
		&admin: domain.RoleAdmin,
		&other: domain.RoleAdmin,
		&plain: domain.RoleMember,
	})
	actor := usertest.Current(admin)

	_, err := f.svc.ChangeRole(ctx, actor, org.ID, members[other.ID].ID, domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)
	err = f.svc.RemoveMember(ctx, actor, org.ID, members[other.ID].ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)
	_, err = f.svc.ChangeRole(ctx, actor, org.ID, members[plain.ID].ID, domain.RoleOwner)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	promoted, err := f.svc.ChangeRole(ctx, actor, org.ID, members[plain.ID].ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)

	err = f.svc.RemoveMember(ctx, usertest.Current(plain), org.ID, members[admin.ID].ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)
}

func TestChangeRoleToSameRoleIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	plain := f.factory.User()
	org, members := f.team(t, alice, map[*domain.User]domain.Role{&plain: domain.RoleMember})

	member, err := f.svc.ChangeRole(ctx, usertest.Current(alice), org.ID, members[plain.ID].ID, domain.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, member.Role)
	assert.Empty(t, f.events.topics())

	_, err = f.svc.ChangeRole(ctx, usertest.Current(alice), org.ID, f.factory.ID(), domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	_, err = f.svc.ChangeRole(ctx, usertest.Current(alice), org.ID, members[plain.ID].ID, "root")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestAcceptExpiredInvitationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	org, _ := f.team(t, alice, nil)
	f.seed(t, usertest.Seed{Users: []domain.User{bob}})
	invitation := f.factory.Invitation(org, alice, bob.Email, domain.RoleMember)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	f.clock.Set(invitation.ExpiresAt)
	_, err := f.svc.AcceptInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{})
	assert.ErrorIs(t, err, domain.ErrInvitationExpired)

	orgs, err := f.svc.ListOrganizations(ctx, usertest.Current(bob))
	require.NoError(t, err)
	assert.Empty(t, orgs)
	assert.Len(t, f.organization(t, alice, org.ID).Members, 1)
}

func TestAcceptInvitationEmailMismatchNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	org, _ := f.team(t, alice, nil)
	f.seed(t, usertest.Seed{Users: []domain.User{bob}})
	invitation := f.factory.Invitation(org, alice, "bob.work@example.com", domain.RoleAdmin)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	view, err := f.svc.GetInvitation(ctx, usertest.Current(bob), invitation.ID)
	require.NoError(t, err)
	assert.False(t, view.EmailMatches)
	assert.False(t, view.Expired)
	assert.Equal(t, org.Name, view.OrganizationName)
	assert.Empty(t, view.Invitation.InviterEmail, "inviter stays hidden from other accounts")
	assert.Zero(t, view.Invitation.InviterID)

	resp, err := f.svc.AcceptInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEmailMismatch, resp.Outcome)
	assert.Equal(t, "bob.work@example.com", resp.InvitedEmail)
	assert.Nil(t, resp.Member)
	assert.Len(t, f.organization(t, alice, org.ID).Members, 1)

	resp, err = f.svc.AcceptInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{AcceptAnyway: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, resp.Outcome)
	require.NotNil(t, resp.Member)
	assert.Equal(t, domain.RoleAdmin, resp.Member.Role)
	assert.Equal(t, bob.Email, resp.Member.Email)
}

func TestGetInvitationVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	plain := f.factory.User()
	bob := f.factory.User()
	mallory := f.factory.User()
	org, _ := f.team(t, alice, map[*domain.User]domain.Role{&plain: domain.RoleMember})
	f.seed(t, usertest.Seed{Users: []domain.User{bob, mallory}})
	invitation := f.factory.Invitation(org, alice, bob.Email, domain.RoleMember)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	for _, user := range []domain.User{bob, plain} {
		view, err := f.svc.GetInvitation(ctx, usertest.Current(user), invitation.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Email, view.Invitation.InviterEmail, user.Email)
	}

	require.NoError(t, f.svc.CancelInvitation(ctx, usertest.Current(alice), org.ID, invitation.ID))
	_, err := f.svc.GetInvitation(ctx, usertest.Current(mallory), invitation.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)

	view, err := f.svc.GetInvitation(ctx, usertest.Current(bob), invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationCanceled, view.Invitation.Status)
}

func TestRejectInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	org, _ := f.team(t, alice, nil)
	f.seed(t, usertest.Seed{Users: []domain.User{bob}})
	invitation := f.factory.Invitation(org, alice, bob.Email, domain.RoleMember)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	resp, err := f.svc.RejectInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, resp.Outcome)

	_, err = f.svc.RejectInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{})
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)
	_, err = f.svc.AcceptInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{})
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)

	orgs, err := f.svc.ListOrganizations(ctx, usertest.Current(bob))
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestAcceptWhenAlreadyMemberKeepsMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	org, members := f.team(t, alice, map[*domain.User]domain.Role{&bob: domain.RoleMember})
	invitation := f.factory.Invitation(org, alice, bob.Email, domain.RoleAdmin)
	f.seed(t, usertest.Seed{Invitations: []domain.OrganizationInvitation{invitation}})

	resp, err := f.svc.AcceptInvitation(ctx, usertest.Current(bob), invitation.ID, domain.RespondInvitationRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, resp.Outcome)
	assert.Equal(t, members[bob.ID].ID, resp.Member.ID)
	assert.Equal(t, domain.RoleMember, resp.Member.Role)
	assert.Len(t, f.organization(t, alice, org.ID).Members, 2)
	assert.NotContains(t, f.events.topics(), event.MemberJoinedTopic)
}

func TestMembershipLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.factory.User()
	bob := f.factory.User()
	f.seed(t, usertest.Seed{Users: []domain.User{alice, bob}})
	a := usertest.Current(alice)
	b := usertest.Current(bob)

	org, err := f.svc.CreateOrganization(ctx, a, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	f.expectInvitationEmail(bob.Email, "")
	invitation, err := f.svc.InviteMember(ctx, a, org.ID, domain.InviteMemberRequest{Email: bob.Email, Role: domain.RoleMember})
	require.NoError(t, err)

	resp, err := f.svc.AcceptInvitation(ctx, b, invitation.ID, domain.RespondInvitationRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, resp.Outcome)

	loaded := f.organization(t, alice, org.ID)
	require.Len(t, loaded.Members, 2)
	bobMember, ok := loaded.Member(bob.ID)
	require.True(t, ok)
	assert.Equal(t, domain.RoleMember, bobMember.Role)
	assert.Empty(t, loaded.Invitations)

	promoted, err := f.svc.ChangeRole(ctx, a, org.ID, bobMember.ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)

	aliceMember, ok := loaded.Member(alice.ID)
	require.True(t, ok)
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, a, org.ID, aliceMember.ID), domain.ErrCannotRemoveSelf)

	require.NoError(t, f.svc.RemoveMember(ctx, a, org.ID, bobMember.ID))
	assert.Len(t, f.organization(t, alice, org.ID).Members, 1)

	assert.Equal(t, []string{
		event.OrganizationCreatedTopic,
		event.MemberInvitedTopic,
		event.MemberJoinedTopic,
		event.MemberRoleChangedTopic,
		event.MemberRemovedTopic,
	}, f.events.topics())
}
