package domain

import (
	"context"
	"slices"
)

// Principal is the identity a request runs as.
type Principal struct {
	ID        string
	Groups    []string
	Superuser bool
	Anonymous bool
}

// AnonymousPrincipal returns the identity of a request without credentials.
func AnonymousPrincipal() Principal {
	return Principal{Anonymous: true}
}

// InGroup reports whether the principal belongs to group.
func (p Principal) InGroup(group string) bool {
	return slices.Contains(p.Groups, group)
}

// RequestContext is the per-request state handed to the authorization gate.
type RequestContext struct {
	Principal Principal
	RequestID string
}

type requestKey struct{}

// ContextWithRequest stores rc in ctx.
func ContextWithRequest(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestKey{}, rc)
}

// RequestFromContext returns the request stored in ctx. Requests without one
// run as the anonymous principal.
func RequestFromContext(ctx context.Context) RequestContext {
	if rc, ok := ctx.Value(requestKey{}).(RequestContext); ok {
		return rc
	}
	return RequestContext{Principal: AnonymousPrincipal()}
}
