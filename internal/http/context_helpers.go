package httpx

import (
	"context"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
)

// resolutionKey and sessionKey are unexported context key types to avoid
// collisions across packages. ResolveSession is their only writer.
type (
	resolutionKey struct{}
	sessionKey    struct{}
)

// SetResolutionInContext returns a child context carrying the request's role resolution.
func SetResolutionInContext(ctx context.Context, res domainauth.Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, res)
}

// ResolutionFromContext returns the role resolution for the request. Without
// ResolveSession in the chain the request is reported as unresolved, never
// as a viewer.
func ResolutionFromContext(ctx context.Context) domainauth.Resolution {
	if res, ok := ctx.Value(resolutionKey{}).(domainauth.Resolution); ok {
		return res
	}
	return domainauth.Pending()
}

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSessionFromContext returns the cookie session backing the request, if any.
func GetSessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}
