package capture

import "context"

// Authorizer asks the host for microphone and speech-recognition
// permission. Implementations may block on a user prompt and must honour
// ctx.
type Authorizer interface {
	Authorize(ctx context.Context) (bool, error)
}

// AuthorizerFunc adapts a function to [Authorizer].
type AuthorizerFunc func(ctx context.Context) (bool, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context) (bool, error) { return f(ctx) }

// StaticAuthorizer always answers granted. It suits hosts without a
// permission model, such as the CLI.
type StaticAuthorizer bool

// Authorize returns a.
func (a StaticAuthorizer) Authorize(context.Context) (bool, error) { return bool(a), nil }

var (
	_ Authorizer = AuthorizerFunc(nil)
	_ Authorizer = StaticAuthorizer(false)
)
