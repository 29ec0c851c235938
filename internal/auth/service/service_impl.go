package service

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/tasklane/internal/auth/domain"
	"github.com/smallbiznis/tasklane/internal/auth/password"
	"github.com/smallbiznis/tasklane/internal/clock"
	"github.com/smallbiznis/tasklane/internal/config"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	"github.com/smallbiznis/tasklane/internal/providers/email"
	"github.com/smallbiznis/tasklane/internal/uow"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultSessionTTL = 7 * 24 * time.Hour
	verifyEmailTTL    = 48 * time.Hour
	passwordResetTTL  = time.Hour

	maxNameLength = 100
	secretBytes   = 32
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	UOW    uow.UnitOfWork
	Clock  clock.Clock
	GenID  *snowflake.Node
	Mailer email.Mailer
}

type Service struct {
	log        *zap.Logger
	uow        uow.UnitOfWork
	clock      clock.Clock
	genID      *snowflake.Node
	mailer     email.Mailer
	validate   *validator.Validate
	secret     []byte
	issuer     string
	sessionTTL time.Duration
}

func New(p Params) (domain.Service, error) {
	log := p.Log.Named("auth.service")

	secret := []byte(p.Config.AuthJWTSecret)
	if len(secret) == 0 {
		if p.Config.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		secret = make([]byte, secretBytes)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Warn("AUTH_JWT_SECRET not set, sessions will not survive a restart")
	}

	ttl := p.Config.AuthTokenTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &Service{
		log:        log,
		uow:        p.UOW,
		clock:      p.Clock,
		genID:      p.GenID,
		mailer:     p.Mailer,
		validate:   validator.New(),
		secret:     secret,
		issuer:     p.Config.AppName,
		sessionTTL: ttl,
	}, nil
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.LoginResult, error) {
	addr, err := s.normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, userdomain.ErrInvalidName
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &userdomain.User{
		ID:           s.genID.Generate(),
		Email:        addr,
		PasswordHash: &hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if name != "" {
		user.Name = &name
	}
	err = s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Users.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)
	return s.login(user)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	addr, err := s.normalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	var user *userdomain.User
	err = s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		found, err := repos.UserQueries.GetUserByEmail(ctx, addr)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		obslogger.WithContext(ctx, s.log).Info("login rejected", zap.String("user_id", user.ID.String()))
		return nil, domain.ErrInvalidCredentials
	}
	if password.NeedsRehash(*user.PasswordHash) {
		s.rehash(ctx, user.ID, req.Password)
	}

	return s.login(user)
}

// rehash upgrades a hash made with older cost settings. Failures are logged
// only; the old hash keeps working.
func (s *Service) rehash(ctx context.Context, userID snowflake.ID, plain string) {
	log := obslogger.WithContext(ctx, s.log).With(zap.String("user_id", userID.String()))

	hashed, err := password.Hash(plain)
	if err != nil {
		log.Warn("failed to rehash password", zap.Error(err))
		return
	}
	err = s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Users.UpdatePasswordHash(ctx, userID, hashed)
	})
	if err != nil {
		log.Warn("failed to store rehashed password", zap.Error(err))
		return
	}
	log.Info("password hash upgraded")
}

func (s *Service) login(user *userdomain.User) (*domain.LoginResult, error) {
	token, expiresAt, err := s.issue(user.ID, audienceSession, s.sessionTTL, tokenClaims{})
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{User: *user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*userdomain.CurrentUser, error) {
	_, userID, err := s.parse(strings.TrimSpace(rawToken), audienceSession)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return &userdomain.CurrentUser{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

func (s *Service) ChangePassword(ctx context.Context, current userdomain.CurrentUser, req domain.ChangePasswordRequest) error {
	if err := checkPassword(req.NewPassword); err != nil {
		return err
	}
	if req.CurrentPassword == req.NewPassword {
		return domain.ErrPasswordUnchanged
	}
	hashed, err := password.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	return s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		user, err := repos.UserQueries.GetUser(ctx, current.ID)
		if err != nil {
			return err
		}
		if user.PasswordHash == nil || !password.Verify(req.CurrentPassword, *user.PasswordHash) {
			return domain.ErrInvalidCredentials
		}
		return repos.Users.UpdatePasswordHash(ctx, user.ID, hashed)
	})
}

func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	claims, userID, err := s.parse(strings.TrimSpace(rawToken), audienceVerifyEmail)
	if err != nil {
		return err
	}

	return s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		user, err := repos.UserQueries.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, userdomain.ErrUserNotFound) {
				return domain.ErrInvalidToken
			}
			return err
		}
		if !strings.EqualFold(user.Email, claims.Email) {
			return domain.ErrInvalidToken
		}
		return repos.Users.MarkEmailVerified(ctx, user.ID, s.clock.Now())
	})
}

func (s *Service) RequestPasswordReset(ctx context.Context, rawEmail string) error {
	addr, err := s.normalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	var user *userdomain.User
	err = s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		found, err := repos.UserQueries.GetUserByEmail(ctx, addr)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	if errors.Is(err, userdomain.ErrUserNotFound) {
		obslogger.WithContext(ctx, s.log).Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, _, err := s.issue(user.ID, audiencePasswordReset, passwordResetTTL, tokenClaims{
		Fingerprint: fingerprint(user.PasswordHash),
	})
	if err != nil {
		return err
	}
	err = s.mailer.SendPasswordReset(ctx, user.Email, locale(user), email.PasswordResetData{
		Name:  displayName(user),
		Token: token,
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to send password reset email",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error {
	claims, userID, err := s.parse(strings.TrimSpace(req.Token), audiencePasswordReset)
	if err != nil {
		return err
	}
	if err := checkPassword(req.Password); err != nil {
		return err
	}
	hashed, err := password.Hash(req.Password)
	if err != nil {
		return err
	}

	return s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		user, err := repos.UserQueries.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, userdomain.ErrUserNotFound) {
				return domain.ErrInvalidToken
			}
			return err
		}
		if fingerprint(user.PasswordHash) != claims.Fingerprint {
			return domain.ErrInvalidToken
		}
		return repos.Users.UpdatePasswordHash(ctx, user.ID, hashed)
	})
}

func (s *Service) sendVerification(ctx context.Context, user *userdomain.User) {
	log := obslogger.WithContext(ctx, s.log)

	token, _, err := s.issue(user.ID, audienceVerifyEmail, verifyEmailTTL, tokenClaims{Email: user.Email})
	if err != nil {
		log.Warn("failed to issue verification token", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	err = s.mailer.SendVerification(ctx, user.Email, locale(user), email.VerificationData{
		Name:  displayName(user),
		Token: token,
	})
	if err != nil {
		log.Warn("failed to send verification email", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (s *Service) loadUser(ctx context.Context, userID snowflake.ID) (*userdomain.User, error) {
	var user *userdomain.User
	err := s.uow.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		found, err := repos.UserQueries.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	return user, err
}

func (s *Service) normalizeEmail(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if err := s.validate.Var(addr, "required,email"); err != nil {
		return "", userdomain.ErrInvalidEmail
	}
	return addr, nil
}

func checkPassword(raw string) error {
	if utf8.RuneCountInString(raw) < domain.MinPasswordLength {
		return domain.ErrWeakPassword
	}
	return nil
}

func locale(user *userdomain.User) string {
	if user.Preferences == nil {
		return ""
	}
	return user.Preferences.Locale
}

func displayName(user *userdomain.User) string {
	if user.Name != nil && *user.Name != "" {
		return *user.Name
	}
	if local, _, ok := strings.Cut(user.Email, "@"); ok {
		return local
	}
	return user.Email
}
