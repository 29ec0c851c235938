// Package context carries request-scoped correlation fields for logs and traces.
package context

import "context"

type requestIDKey struct{}
type orgIDKey struct{}
type actorIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, orgID)
}

func OrgIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(orgIDKey{}).(string)
	return value
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

func ActorIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(actorIDKey{}).(string)
	return value
}
