package identity

import "context"

// Role classifies the authenticated caller.
type Role string

const (
	RoleClient Role = "client"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// Caller is the authenticated identity attached to every request.
type Caller struct {
	ID   string
	Role Role
}

type ctxKey string

const callerKey ctxKey = "telehealth.caller"

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext extracts the caller if present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	val := ctx.Value(callerKey)
	if val == nil {
		return Caller{}, false
	}
	c, ok := val.(Caller)
	return c, ok && c.ID != ""
}

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleExpert, RoleAdmin:
		return true
	}
	return false
}
