package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/event"
	"github.com/smallbiznis/tasklane/internal/uow"
	"github.com/smallbiznis/tasklane/internal/user/domain"
)

func (s *Service) GetInvitation(ctx context.Context, user domain.CurrentUser, invitationID snowflake.ID) (*domain.InvitationView, error) {
	var view *domain.InvitationView
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		invitation, orgName, err := repos.UserQueries.GetInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		emailMatches := strings.EqualFold(invitation.Email, user.Email)
		member, err := existingMembership(ctx, repos, user.ID, invitation.OrgID)
		if err != nil {
			return err
		}

		// Someone else holding the link sees only what they need to decide
		// whether to accept anyway.
		if !emailMatches && member == nil {
			if invitation.Status != domain.InvitationPending {
				return domain.ErrInvitationNotFound
			}
			invitation.InviterID = 0
			invitation.InviterName = nil
			invitation.InviterEmail = ""
		}
		view = &domain.InvitationView{
			Invitation:       *invitation,
			OrganizationName: orgName,
			Expired:          invitation.Expired(s.clock.Now()),
			EmailMatches:     emailMatches,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) AcceptInvitation(ctx context.Context, user domain.CurrentUser, invitationID snowflake.ID, req domain.RespondInvitationRequest) (*domain.InvitationResponse, error) {
	var (
		resp   *domain.InvitationResponse
		joined bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		invitation, err := s.respondable(ctx, repos, invitationID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(invitation.Email, user.Email) && !req.AcceptAnyway {
			resp = &domain.InvitationResponse{Outcome: domain.OutcomeEmailMismatch, InvitedEmail: invitation.Email}
			return nil
		}

		member, err := existingMembership(ctx, repos, user.ID, invitation.OrgID)
		if err != nil {
			return err
		}
		if member == nil {
			member = &domain.OrganizationMember{
				ID:        s.genID.Generate(),
				OrgID:     invitation.OrgID,
				UserID:    user.ID,
				Role:      invitation.EffectiveRole(),
				Name:      user.Name,
				Email:     user.Email,
				CreatedAt: s.clock.Now(),
			}
			if err := repos.Users.AddMember(ctx, member); err != nil {
				return err
			}
			joined = true
		}

		if err := repos.Users.TransitionInvitation(ctx, invitationID, domain.InvitationAccepted); err != nil {
			return err
		}
		resp = &domain.InvitationResponse{
			Outcome:      domain.OutcomeAccepted,
			InvitedEmail: invitation.Email,
			Member:       member,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.publish(ctx, resp.Member.OrgID, event.MemberJoinedTopic, map[string]any{
			"member_id":     resp.Member.ID.String(),
			"user_id":       user.ID.String(),
			"role":          string(resp.Member.Role),
			"invitation_id": invitationID.String(),
		})
	}
	return resp, nil
}

func (s *Service) RejectInvitation(ctx context.Context, user domain.CurrentUser, invitationID snowflake.ID, req domain.RespondInvitationRequest) (*domain.InvitationResponse, error) {
	var resp *domain.InvitationResponse
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		invitation, err := s.respondable(ctx, repos, invitationID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(invitation.Email, user.Email) && !req.AcceptAnyway {
			resp = &domain.InvitationResponse{Outcome: domain.OutcomeEmailMismatch, InvitedEmail: invitation.Email}
			return nil
		}

		if err := repos.Users.TransitionInvitation(ctx, invitationID, domain.InvitationRejected); err != nil {
			return err
		}
		resp = &domain.InvitationResponse{Outcome: domain.OutcomeRejected, InvitedEmail: invitation.Email}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// respondable loads an invitation that is still pending and unexpired.
func (s *Service) respondable(ctx context.Context, repos uow.Repositories, invitationID snowflake.ID) (*domain.OrganizationInvitation, error) {
	invitation, _, err := repos.UserQueries.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation.Status != domain.InvitationPending {
		return nil, domain.ErrInvitationNotPending
	}
	if invitation.Expired(s.clock.Now()) {
		return nil, domain.ErrInvitationExpired
	}
	return invitation, nil
}

func existingMembership(ctx context.Context, repos uow.Repositories, userID, orgID snowflake.ID) (*domain.OrganizationMember, error) {
	orgs, err := repos.UserQueries.GetCurrentUserOrganizations(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range orgs {
		if orgs[i].ID != orgID {
			continue
		}
		if member, ok := orgs[i].Member(userID); ok {
			copied := *member
			return &copied, nil
		}
	}
	return nil, nil
}
