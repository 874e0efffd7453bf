package auth

import "context"

// Source says how a request proved who it is.
type Source string

const (
	SourceBearer  Source = "bearer"
	SourceSession Source = "session"
)

// Identity is the authenticated caller of one request.
//
// It is built once by the Authenticate middleware from verified token
// claims and then only read. Handlers never look anywhere else for "who is
// calling": no globals, no re-parsing headers.
type Identity struct {
	Subject string // identity-provider subject, also the users.id primary key
	Name    string
	Email   string
	Picture string
	Source  Source

	// IDToken is the provider's OIDC ID token. Only session identities
	// carry it; logout hands it back to the client.
	IDToken string
}

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or overwrite the identity stored under it.
type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the caller's identity, or (Identity{}, false)
// for an anonymous request.
//
// Usage in handlers:
//
//	id, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    // anonymous
//	}
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.Subject != ""
}
