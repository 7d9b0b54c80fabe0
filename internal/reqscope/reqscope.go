// Package reqscope threads the inbound request's identity through the
// contexts handed to user callbacks, so round-trip calls made from inside
// a callback are tied to the request that triggered them. The scope is an
// explicit context value, never a shared slot, so concurrently running
// callbacks cannot observe each other's scope.
package reqscope

import "context"

// Scope identifies the inbound request a callback is running on behalf of.
type Scope struct {
	RequestID  string
	AuthTokens map[string]string
}

type key struct{}

// With returns a context carrying the given scope.
func With(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, key{}, s)
}

// From extracts the scope set by With, if any.
func From(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(key{}).(*Scope)
	return s, ok
}
