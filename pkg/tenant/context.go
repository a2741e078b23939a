// Package tenant carries the acting user resolved by the gateway.
package tenant

import (
	"context"
	"errors"
)

type contextKey string

const (
	userIDKey contextKey = "actorUserId"
	roleKey   contextKey = "actorRole"
)

// Gateway headers carrying the authenticated actor
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Actor roles
const (
	RoleUser       = "user"
	RoleSupport    = "support"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

var (
	ErrMissingActor  = errors.New("actor context is required")
	ErrMissingUserID = errors.New("userId is required")
	ErrUnknownRole   = errors.New("unknown actor role")
)

// Context identifies who is performing an operation. UserID owns orders,
// shipments and the wallet being debited.
type Context struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// FromContext extracts the actor. Returns ErrMissingActor when no user is set.
func FromContext(ctx context.Context) (*Context, error) {
	tc := &Context{}
	if v, ok := ctx.Value(userIDKey).(string); ok {
		tc.UserID = v
	}
	if v, ok := ctx.Value(roleKey).(string); ok {
		tc.Role = v
	}
	if tc.UserID == "" {
		return nil, ErrMissingActor
	}
	if tc.Role == "" {
		tc.Role = RoleUser
	}
	return tc, nil
}

// FromContextOptional returns an empty Context instead of an error
func FromContextOptional(ctx context.Context) *Context {
	tc, _ := FromContext(ctx)
	if tc == nil {
		return &Context{}
	}
	return tc
}

// ToContext stores the actor in ctx
func ToContext(ctx context.Context, tc *Context) context.Context {
	if tc == nil {
		return ctx
	}
	if tc.UserID != "" {
		ctx = context.WithValue(ctx, userIDKey, tc.UserID)
	}
	if tc.Role != "" {
		ctx = context.WithValue(ctx, roleKey, tc.Role)
	}
	return ctx
}

// Validate checks the actor carries a user and a known role
func (c *Context) Validate() error {
	if c.UserID == "" {
		return ErrMissingUserID
	}
	switch c.Role {
	case RoleUser, RoleSupport, RoleAdmin, RoleSuperAdmin:
		return nil
	default:
		return ErrUnknownRole
	}
}

// IsStaff reports whether the actor is an operator rather than a seller
func (c *Context) IsStaff() bool {
	switch c.Role {
	case RoleSupport, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
