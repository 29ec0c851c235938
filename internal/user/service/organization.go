package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/tasklane/internal/authorization"
	"github.com/smallbiznis/tasklane/internal/event"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	"github.com/smallbiznis/tasklane/internal/uow"
	"github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/zap"
)

func (s *Service) ListOrganizations(ctx context.Context, user domain.CurrentUser) ([]domain.Organization, error) {
	var orgs []domain.Organization
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		orgs, err = repos.UserQueries.GetCurrentUserOrganizations(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

func (s *Service) CreateOrganization(ctx context.Context, user domain.CurrentUser, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	var orgSlug *string
	if req.Slug != nil && strings.TrimSpace(*req.Slug) != "" {
		sanitized := sanitizeSlug(*req.Slug)
		if sanitized == "" {
			return nil, domain.ErrInvalidSlug
		}
		orgSlug = &sanitized
	} else if derived := sanitizeSlug(name); derived != "" {
		orgSlug = &derived
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      orgSlug,
		CreatedAt: now,
	}
	owner := &domain.OrganizationMember{
		ID:        s.genID.Generate(),
		OrgID:     org.ID,
		UserID:    user.ID,
		Role:      domain.RoleOwner,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: now,
	}

	err = s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Users.CreateOrganization(ctx, org, owner)
	})
	if err != nil {
		return nil, err
	}

	org.Members = []domain.OrganizationMember{*owner}
	org.Invitations = []domain.OrganizationInvitation{}
	s.publish(ctx, org.ID, event.OrganizationCreatedTopic, map[string]any{
		"organization_id": org.ID.String(),
		"owner_id":        user.ID.String(),
	})
	return org, nil
}

func (s *Service) UpdateOrganization(ctx context.Context, user domain.CurrentUser, orgID snowflake.ID, req domain.UpdateOrganizationRequest) (*domain.Organization, error) {
	var patch domain.OrganizationPatch
	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if req.Slug != nil {
		var sanitized string
		if strings.TrimSpace(*req.Slug) != "" {
			sanitized = sanitizeSlug(*req.Slug)
			if sanitized == "" {
				return nil, domain.ErrInvalidSlug
			}
		}
		patch.Slug = &sanitized
	}
	if req.Logo != nil {
		logo := strings.TrimSpace(*req.Logo)
		if logo != "" {
			if key, stored := s.files.KeyFromURL(logo); stored && !ownsLogoKey(orgID, key) {
				return nil, domain.ErrInvalidLogo
			}
		}
		patch.Logo = &logo
	}
	if req.Metadata != nil {
		metadata := *req.Metadata
		patch.Metadata = &metadata
	}

	var (
		updated *domain.Organization
		oldLogo *string
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		org, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, member.Role, authorization.ObjectOrganization, authorization.ActionOrganizationUpdate, domain.ErrOnlyOwnersCanUpdate); err != nil {
			return err
		}

		oldLogo = org.Logo
		updated, err = repos.Users.UpdateOrganization(ctx, orgID, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	if patch.Logo != nil && *patch.Logo != "" && oldLogo != nil && *oldLogo != *patch.Logo {
		s.deleteLogo(ctx, orgID, *oldLogo)
	}
	return updated, nil
}

func (s *Service) DeleteOrganization(ctx context.Context, user domain.CurrentUser, orgID snowflake.ID) error {
	var logo *string
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		org, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, member.Role, authorization.ObjectOrganization, authorization.ActionOrganizationDelete, domain.ErrOnlyOwnersCanDelete); err != nil {
			return err
		}

		logo = org.Logo
		return repos.Users.DeleteOrganization(ctx, orgID)
	})
	if err != nil {
		return err
	}

	if logo != nil {
		s.deleteLogo(ctx, orgID, *logo)
	}
	s.publish(ctx, orgID, event.OrganizationDeletedTopic, map[string]any{
		"organization_id": orgID.String(),
		"actor_id":        user.ID.String(),
	})
	return nil
}

func (s *Service) UploadOrganizationLogo(ctx context.Context, user domain.CurrentUser, orgID snowflake.ID, req domain.UploadLogoRequest) (*domain.UploadLogoResult, error) {
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	ext, ok := domain.AllowedLogoTypes[mimeType]
	if !ok || len(req.Data) == 0 {
		return nil, domain.ErrInvalidFileType
	}
	if len(req.Data) > domain.MaxLogoBytes {
		return nil, domain.ErrFileTooLarge
	}

	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		_, member, err := loadOrganization(ctx, repos, user.ID, orgID)
		if err != nil {
			return err
		}
		return s.authorize(ctx, member.Role, authorization.ObjectOrganization, authorization.ActionOrganizationLogo, domain.ErrOnlyOwnersCanUploadLogo)
	})
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%slogo-%d-%s.%s", domain.LogoKeyPrefix(orgID), s.clock.Now().UnixMilli(), uuid.NewString(), ext)
	res, err := s.files.UploadPublic(ctx, req.Data, key, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload logo: %w", err)
	}
	return &domain.UploadLogoResult{URL: res.URL, Key: res.Key}, nil
}

// deleteLogo removes a replaced logo. Failures are logged only.
func (s *Service) deleteLogo(ctx context.Context, orgID snowflake.ID, logo string) {
	log := obslogger.WithContext(ctx, s.log).With(zap.String("org_id", orgID.String()))

	key, ok := s.files.KeyFromURL(logo)
	if !ok {
		log.Warn("old logo is not a stored object, skipping delete", zap.String("logo", logo))
		return
	}
	if !ownsLogoKey(orgID, key) {
		log.Warn("old logo belongs to another organization, skipping delete", zap.String("key", key))
		return
	}
	if err := s.files.Delete(ctx, key); err != nil {
		log.Warn("failed to delete old logo", zap.String("key", key), zap.Error(err))
	}
}

// ownsLogoKey reports whether key lives under the logo prefix of orgID.
func ownsLogoKey(orgID snowflake.ID, key string) bool {
	return strings.HasPrefix(key, domain.LogoKeyPrefix(orgID)) && !strings.Contains(key, "..")
}
