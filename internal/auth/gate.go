package auth

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
)

var (
	// ErrUnauthorized is returned when a request carries no valid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoCredentials means the resolver found nothing it understands in the request.
	ErrNoCredentials = fmt.Errorf("%w: no credentials", ErrUnauthorized)
)

// Identity is the authenticated user behind a connection or request.
type Identity struct {
	ID   string
	Name string
}

// Resolver turns request credentials into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, r *stdhttp.Request) (Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, r *stdhttp.Request) (Identity, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, r *stdhttp.Request) (Identity, error) {
	return f(ctx, r)
}

// Chain tries resolvers in order until one succeeds. Missing or rejected
// credentials hand over to the next resolver; if every resolver fails, the
// first rejection is returned. Errors that are not ErrUnauthorized, such as a
// failed store lookup, stop the chain.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, r *stdhttp.Request) (Identity, error) {
	var rejected error
	for _, resolver := range c {
		id, err := resolver.Resolve(ctx, r)
		switch {
		case err == nil:
			return id, nil
		case errors.Is(err, ErrNoCredentials):
		case errors.Is(err, ErrUnauthorized):
			if rejected == nil {
				rejected = err
			}
		default:
			return Identity{}, err
		}
	}
	if rejected != nil {
		return Identity{}, rejected
	}
	return Identity{}, ErrNoCredentials
}

// Gate authenticates a request exactly once; callers cache the Identity.
type Gate struct {
	resolver Resolver
}

// NewGate builds a gate over the given resolvers.
func NewGate(resolvers ...Resolver) *Gate {
	return &Gate{resolver: Chain(resolvers)}
}

// Authenticate resolves the request's identity. Every failure wraps ErrUnauthorized.
func (g *Gate) Authenticate(ctx context.Context, r *stdhttp.Request) (Identity, error) {
	id, err := g.resolver.Resolve(ctx, r)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("%w: empty identity", ErrUnauthorized)
	}
	return id, nil
}
