package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	"github.com/smallbiznis/tasklane/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonOrgRate         = "org-rate"
	rateLimitReasonInviteeInFlight = "invitee-in-flight"

	maxInvitationBodyBytes = 4 << 10
)

var errInvitationBodyTooLarge = errors.New("invitation_body_too_large")

// InvitationLimiter is the rate limiter guarding invitation sends.
type InvitationLimiter interface {
	Enabled() bool
	AllowOrg(ctx context.Context, orgID string) (*ratelimit.RateLimitResult, error)
	HoldInvitee(ctx context.Context, orgID, email string) (ratelimit.InviteeLease, bool, error)
	ReleaseInvitee(ctx context.Context, lease ratelimit.InviteeLease) error
}

type invitationRateLimitKey struct {
	Email string `json:"email"`
}

// InvitationRateLimit guards invitation sends with the per-organization
// token bucket and holds a lease on the invitee address while the request
// runs. Callers that may not invite into the organization are refused before
// any token is spent. Everything passes through when no limiter is configured.
func (s *Server) InvitationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		log := obslogger.FromContext(ctx)
		route := normalizeRateLimitEndpoint(c)

		user, ok := currentUser(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := s.usersvc.AuthorizeInvite(ctx, user, orgID); err != nil {
			AbortWithError(c, err)
			return
		}

		result, err := s.limiter.AllowOrg(ctx, orgID.String())
		if err != nil {
			log.Warn("invitation rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			s.denyRateLimit(c, orgID.String(), route, rateLimitReasonOrgRate, result.RetryAfter)
			return
		}

		email, err := readInvitationKey(c)
		if err != nil {
			log.Warn("invitation rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		if email != "" {
			lease, held, err := s.limiter.HoldInvitee(ctx, orgID.String(), email)
			if err != nil {
				log.Warn("invitation lease failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !held {
				s.denyRateLimit(c, orgID.String(), route, rateLimitReasonInviteeInFlight, time.Second)
				return
			}
			defer func() {
				if err := s.limiter.ReleaseInvitee(ctx, lease); err != nil {
					log.Warn("invitation lease release failed", zap.Error(err))
				}
			}()
		}

		s.invitationMetrics.RecordAllowed(ctx, orgID.String(), route)
		c.Next()
	}
}

func (s *Server) denyRateLimit(c *gin.Context, orgID, route, reason string, retryAfter time.Duration) {
	ctx := c.Request.Context()
	obslogger.FromContext(ctx).Warn("invitation rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", route),
	)
	s.invitationMetrics.RecordDenied(ctx, orgID, route, reason)

	c.Header("Retry-After", retryAfterSeconds(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

// retryAfterSeconds rounds up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// readInvitationKey peeks at the invitee email and restores the body. Bodies
// over maxInvitationBodyBytes are refused.
func readInvitationKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInvitationBodyBytes+1))
	if err != nil {
		return "", err
	}
	if len(body) > maxInvitationBodyBytes {
		return "", errInvitationBodyTooLarge
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload invitationRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.Email), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
