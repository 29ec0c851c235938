package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tasklane/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyInvitationOrg     = "tasklane:invitations:org:%s"
	keyInvitationInvitee = "tasklane:invitations:invitee:%s:%s"

	inviteeLeaseTTL = 10 * time.Second
)

// releaseInviteeScript drops an invitee lease only while it still carries the
// holder written by HoldInvitee, so an expired lease taken over by another
// request is left alone.
const releaseInviteeScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type invitationClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// InvitationLimiter throttles invitations per organization and lets only one
// invitation to a given address run at a time. A nil limiter allows
// everything.
type InvitationLimiter struct {
	client  invitationClient
	bucket  *TokenBucket
	release *redis.Script
	limits  *config.LimitsHolder
}

// InviteeLease is held by the request currently inviting an address.
type InviteeLease struct {
	key    string
	holder string
}

type InvitationLimiterParams struct {
	fx.In

	Config config.Config
	Limits *config.LimitsHolder
	Log    *zap.Logger
}

func NewInvitationLimiter(lc fx.Lifecycle, p InvitationLimiterParams) *InvitationLimiter {
	addr := strings.TrimSpace(p.Config.RedisAddr)
	if addr == "" {
		p.Log.Info("invitation rate limit disabled, REDIS_ADDR not set")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: p.Config.RedisPassword,
		DB:       p.Config.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewInvitationLimiterWithClient(client, p.Limits)
}

func NewInvitationLimiterWithClient(client redis.UniversalClient, limits *config.LimitsHolder) *InvitationLimiter {
	return &InvitationLimiter{
		client:  client,
		bucket:  NewTokenBucket(client),
		release: redis.NewScript(releaseInviteeScript),
		limits:  limits,
	}
}

func (l *InvitationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowOrg spends one invitation token of orgID.
func (l *InvitationLimiter) AllowOrg(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limits := l.limits.Get().Invitations
	return l.bucket.Allow(ctx, fmt.Sprintf(keyInvitationOrg, strings.TrimSpace(orgID)), limits.RatePerSecond, limits.Burst)
}

// HoldInvitee takes the lease on email within orgID. held is false while
// another invitation to the same address is in flight.
func (l *InvitationLimiter) HoldInvitee(ctx context.Context, orgID, email string) (lease InviteeLease, held bool, err error) {
	if !l.Enabled() {
		return InviteeLease{}, true, nil
	}
	lease = InviteeLease{key: inviteeKey(orgID, email), holder: uuid.NewString()}
	held, err = l.client.SetNX(ctx, lease.key, lease.holder, inviteeLeaseTTL).Result()
	if err != nil {
		return InviteeLease{}, false, fmt.Errorf("hold invitee lease: %w", err)
	}
	if !held {
		return InviteeLease{}, false, nil
	}
	return lease, true, nil
}

// ReleaseInvitee gives the lease back. Releasing the zero lease is a no-op.
func (l *InvitationLimiter) ReleaseInvitee(ctx context.Context, lease InviteeLease) error {
	if !l.Enabled() || lease.key == "" {
		return nil
	}
	if err := l.release.Run(ctx, l.client, []string{lease.key}, lease.holder).Err(); err != nil {
		return fmt.Errorf("release invitee lease: %w", err)
	}
	return nil
}

func inviteeKey(orgID, email string) string {
	return fmt.Sprintf(keyInvitationInvitee, strings.TrimSpace(orgID), strings.ToLower(strings.TrimSpace(email)))
}
