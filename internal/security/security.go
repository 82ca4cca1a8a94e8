// Package security provides scoped authorization contexts.
//
// An Authorization is installed into a context.Context for the duration of a
// function call. Components that talk to the host platform read it from the
// context to decide with which identity and permission a request is sent.
package security

import (
	"context"
	"errors"
	"fmt"
)

var ErrPermissionDenied = errors.New("permission denied")

// Permission is an authorization level, higher values include the lower ones.
type Permission uint8

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdmin
)

var permissionStrings = [...]string{
	PermissionNone:  "none",
	PermissionRead:  "read",
	PermissionWrite: "write",
	PermissionAdmin: "admin",
}

func (p Permission) String() string {
	if int(p) >= len(permissionStrings) {
		return fmt.Sprintf("unsupported permission value: %d", p)
	}

	return permissionStrings[p]
}

// Principal is a user of the host platform.
type Principal struct {
	Login string
}

func (p *Principal) String() string {
	return p.Login
}

// Authorization describes the authorization context an operation runs in.
type Authorization struct {
	// Permission is the elevated permission of the service account.
	Permission Permission
	// Impersonated is the user as which operations are performed, nil if
	// none is impersonated.
	Impersonated *Principal
	Reason       string
}

type ctxKey struct{}

// ContextWithAuthorization returns a copy of ctx that carries auth.
func ContextWithAuthorization(ctx context.Context, auth *Authorization) context.Context {
	return context.WithValue(ctx, ctxKey{}, auth)
}

// FromContext returns the authorization stored in ctx.
// If ctx has none, an Authorization with PermissionNone is returned.
func FromContext(ctx context.Context) *Authorization {
	if auth, ok := ctx.Value(ctxKey{}).(*Authorization); ok {
		return auth
	}

	return &Authorization{Permission: PermissionNone}
}

// Require returns an error wrapping ErrPermissionDenied if the authorization in
// ctx does not grant perm.
// Operations of an impersonated principal are authorized by the host with the
// principal's own grants, they always pass.
func Require(ctx context.Context, perm Permission) error {
	auth := FromContext(ctx)

	if auth.Impersonated != nil || auth.Permission >= perm {
		return nil
	}

	return fmt.Errorf("%w: operation requires %s permission, context has %s", ErrPermissionDenied, perm, auth.Permission)
}
