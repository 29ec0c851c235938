package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/authorization"
	"github.com/smallbiznis/tasklane/internal/event"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	"github.com/smallbiznis/tasklane/internal/providers/email"
	"github.com/smallbiznis/tasklane/internal/uow"
	"github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/zap"
)

func (s *Service) AuthorizeInvite(ctx context.Context, user domain.CurrentUser, orgID snowflake.ID) error {
	return s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		_, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		return s.authorize(ctx, member.Role, authorization.ObjectOrganization, authorization.ActionMemberInvite, domain.ErrInsufficientRole)
	})
}

func (s *Service) InviteMember(ctx context.Context, user domain.CurrentUser, orgID snowflake.ID, req domain.InviteMemberRequest) (*domain.OrganizationInvitation, error) {
	invitee, err := s.normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RoleMember
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if strings.EqualFold(invitee, user.Email) {
		return nil, domain.ErrCannotInviteSelf
	}

	var (
		invitation *domain.OrganizationInvitation
		orgName    string
		locale     string
	)
	err = s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		org, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, member.Role, authorization.ObjectOrganization, authorization.ActionMemberInvite, domain.ErrInsufficientRole); err != nil {
			return err
		}
		if err := s.authorize(ctx, member.Role, authorization.RoleObject(role), authorization.ActionRoleGrant, domain.ErrInsufficientRole); err != nil {
			return err
		}

		if _, ok := org.MemberByEmail(invitee); ok {
			return domain.ErrAlreadyMember
		}
		now := s.clock.Now()
		if pending, ok := org.PendingInvitation(invitee); ok {
			if !pending.Expired(now) {
				return domain.ErrInvitationAlreadyPending
			}
			// an expired invitation is superseded by the new one
			if err := repos.Users.TransitionInvitation(ctx, pending.ID, domain.InvitationCanceled); err != nil {
				return err
			}
		}

		inviter, err := repos.UserQueries.GetUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if inviter.Preferences != nil {
			locale = inviter.Preferences.Locale
		}

		invitation = &domain.OrganizationInvitation{
			ID:           s.genID.Generate(),
			OrgID:        orgID,
			Email:        invitee,
			Role:         &role,
			Status:       domain.InvitationPending,
			ExpiresAt:    now.Add(domain.InvitationTTL),
			InviterID:    user.ID,
			InviterName:  user.Name,
			InviterEmail: user.Email,
			CreatedAt:    now,
		}
		orgName = org.Name
		return repos.Users.CreateInvitation(ctx, invitation)
	})
	if err != nil {
		return nil, err
	}

	s.sendInvitation(ctx, invitation, orgName, locale)
	s.publish(ctx, orgID, event.MemberInvitedTopic, map[string]any{
		"invitation_id": invitation.ID.String(),
		"email":         invitation.Email,
		"role":          string(role),
		"inviter_id":    user.ID.String(),
	})
	return invitation, nil
}

func (s *Service) sendInvitation(ctx context.Context, invitation *domain.OrganizationInvitation, orgName, locale string) {
	inviterName := nameOrEmpty(invitation.InviterName)
	if inviterName == "" {
		inviterName = invitation.InviterEmail
	}

	err := s.mailer.SendInvitation(ctx, invitation.Email, locale, email.InvitationData{
		InvitationID:     invitation.ID.String(),
		OrganizationName: orgName,
		InviterName:      inviterName,
		InviterEmail:     invitation.InviterEmail,
		Role:             string(invitation.EffectiveRole()),
		ExpiresAt:        invitation.ExpiresAt,
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to send invitation email",
			zap.String("invitation_id", invitation.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) CancelInvitation(ctx context.Context, user domain.CurrentUser, orgID, invitationID snowflake.ID) error {
	return s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		_, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, member.Role, authorization.ObjectInvitation, authorization.ActionInvitationCancel, domain.ErrInsufficientRole); err != nil {
			return err
		}

		invitation, _, err := repos.UserQueries.GetInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		if invitation.OrgID != orgID {
			return domain.ErrInvitationNotFound
		}
		if invitation.Status != domain.InvitationPending {
			return domain.ErrInvitationNotPending
		}
		return repos.Users.TransitionInvitation(ctx, invitationID, domain.InvitationCanceled)
	})
}

func (s *Service) ChangeRole(ctx context.Context, user domain.CurrentUser, orgID, memberID snowflake.ID, role domain.Role) (*domain.OrganizationMember, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	var (
		target  domain.OrganizationMember
		changed bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		org, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		found, ok := org.MemberByID(memberID)
		if !ok {
			return domain.ErrMemberNotFound
		}
		target = *found

		if err := s.authorize(ctx, member.Role, authorization.MemberObject(target.Role), authorization.ActionMemberChangeRole, domain.ErrInsufficientRole); err != nil {
			return err
		}
		if target.Role == role {
			return nil
		}
		if err := s.authorize(ctx, member.Role, authorization.RoleObject(role), authorization.ActionRoleGrant, domain.ErrInsufficientRole); err != nil {
			return err
		}
		if target.Role == domain.RoleOwner && org.OwnerCount() == 1 {
			return domain.ErrLastOwner
		}

		if err := repos.Users.UpdateMemberRole(ctx, memberID, role); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &target, nil
	}

	previous := target.Role
	target.Role = role
	s.publish(ctx, orgID, event.MemberRoleChangedTopic, map[string]any{
		"member_id": memberID.String(),
		"user_id":   target.UserID.String(),
		"from":      string(previous),
		"to":        string(role),
		"actor_id":  user.ID.String(),
	})
	return &target, nil
}

func (s *Service) RemoveMember(ctx context.Context, user domain.CurrentUser, orgID, memberID snowflake.ID) error {
	var target domain.OrganizationMember
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		org, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		found, ok := org.MemberByID(memberID)
		if !ok {
			return domain.ErrMemberNotFound
		}
		target = *found

		if target.UserID == user.ID {
			return domain.ErrCannotRemoveSelf
		}
		if err := s.authorize(ctx, member.Role, authorization.MemberObject(target.Role), authorization.ActionMemberRemove, domain.ErrInsufficientRole); err != nil {
			return err
		}
		if target.Role == domain.RoleOwner && org.OwnerCount() == 1 {
			return domain.ErrLastOwner
		}
		return repos.Users.RemoveMember(ctx, memberID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, orgID, event.MemberRemovedTopic, map[string]any{
		"member_id": memberID.String(),
		"user_id":   target.UserID.String(),
		"actor_id":  user.ID.String(),
	})
	return nil
}
