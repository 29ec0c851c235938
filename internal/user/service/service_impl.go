package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/tasklane/internal/authorization"
	"github.com/smallbiznis/tasklane/internal/clock"
	"github.com/smallbiznis/tasklane/internal/event"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	"github.com/smallbiznis/tasklane/internal/providers/email"
	"github.com/smallbiznis/tasklane/internal/providers/storage"
	"github.com/smallbiznis/tasklane/internal/uow"
	"github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxNameLength = 100
	maxSlugLength = 64
)

var repeatedHyphens = regexp.MustCompile(`-{2,}`)

type Params struct {
	fx.In

	Log    *zap.Logger
	UOW    uow.UnitOfWork
	Clock  clock.Clock
	GenID  *snowflake.Node
	Authz  authorization.Service
	Files  storage.FileGateway
	Mailer email.Mailer
	Events event.EventPublisher `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	uow      uow.UnitOfWork
	clock    clock.Clock
	genID    *snowflake.Node
	authz    authorization.Service
	files    storage.FileGateway
	mailer   email.Mailer
	events   event.EventPublisher
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("user.service"),
		uow:      p.UOW,
		clock:    p.Clock,
		genID:    p.GenID,
		authz:    p.Authz,
		files:    p.Files,
		mailer:   p.Mailer,
		events:   p.Events,
		validate: validator.New(),
	}
}

func (s *Service) UpdateUserPreferences(ctx context.Context, user domain.CurrentUser, req domain.UpdatePreferencesRequest) (*domain.User, error) {
	var patch domain.Preferences
	if req.Locale != nil {
		switch *req.Locale {
		case domain.LocaleEN, domain.LocaleFR:
			patch.Locale = *req.Locale
		default:
			return nil, domain.ErrInvalidLocale
		}
	}
	if req.Theme != nil {
		switch *req.Theme {
		case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
			patch.Theme = *req.Theme
		default:
			return nil, domain.ErrInvalidTheme
		}
	}

	var updated *domain.User
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		current, err := repos.UserQueries.GetUser(ctx, user.ID)
		if err != nil {
			return err
		}

		prefs := domain.Preferences{}
		if current.Preferences != nil {
			prefs = *current.Preferences
		}
		updated, err = repos.Users.UpdatePreferences(ctx, user.ID, prefs.Merge(patch))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) UpdateProfile(ctx context.Context, user domain.CurrentUser, req domain.UpdateProfileRequest) (*domain.User, error) {
	var name *string
	if trimmed := strings.TrimSpace(req.Name); trimmed != "" {
		if utf8.RuneCountInString(trimmed) > maxNameLength {
			return nil, domain.ErrInvalidName
		}
		name = &trimmed
	}

	var updated *domain.User
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		updated, err = repos.Users.UpdateProfile(ctx, user.ID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// loadOrganization returns the organization together with the caller's
// membership. Organizations the caller does not belong to are reported as
// missing.
func loadOrganization(ctx context.Context, repos uow.Repositories, userID, orgID snowflake.ID) (*domain.Organization, *domain.OrganizationMember, error) {
	orgs, err := repos.UserQueries.GetCurrentUserOrganizations(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	for i := range orgs {
		if orgs[i].ID != orgID {
			continue
		}
		member, ok := orgs[i].Member(userID)
		if !ok {
			return nil, nil, domain.ErrOrganizationNotFound
		}
		return &orgs[i], member, nil
	}
	return nil, nil, domain.ErrOrganizationNotFound
}

// authorize checks the policy and reports a denial as denied.
func (s *Service) authorize(ctx context.Context, role domain.Role, object, action string, denied error) error {
	err := s.authz.Authorize(ctx, role, object, action)
	if errors.Is(err, authorization.ErrForbidden) {
		return denied
	}
	return err
}

func (s *Service) publish(ctx context.Context, orgID snowflake.ID, topic string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, orgID, topic, payload); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to publish organization event",
			zap.String("topic", topic),
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

// sanitizeSlug reduces raw to lowercase letters, digits and single hyphens.
func sanitizeSlug(raw string) string {
	out := slug.Make(raw)
	out = strings.ReplaceAll(out, "_", "-")
	out = repeatedHyphens.ReplaceAllString(out, "-")
	if len(out) > maxSlugLength {
		out = out[:maxSlugLength]
	}
	return strings.Trim(out, "-")
}

func (s *Service) normalizeEmail(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if err := s.validate.Var(addr, "required,email"); err != nil {
		return "", domain.ErrInvalidEmail
	}
	return addr, nil
}

func nameOrEmpty(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}
