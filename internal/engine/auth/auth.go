// Package auth carries the request principal and checks role permissions.
package auth

import (
	"context"
	"errors"

	"clearline/internal/repo"
)

// Permission identifiers, seeded per role by migration.
const (
	PermProjectCreate = "project.create"
	PermProjectRead   = "project.read"
	PermProjectList   = "project.list"
	PermProjectUpdate = "project.update"
	PermProjectDelete = "project.delete"
	PermTaskRead      = "task.read"
	PermTaskUpdate    = "task.update"
	PermTaskSync      = "task.sync"
	PermStageUpdate   = "stage.update"
	PermRuleManage    = "rule.manage"
	PermUserManage    = "user.manage"
	PermEventRead     = "event.read"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Principal identifies the authenticated caller and how it authenticated.
type Principal struct {
	ActorID string
	Source  string // "jwt", "api_key" or "legacy_header"
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type Checker struct {
	Repo repo.Repo
}

// Require returns ErrForbidden unless the context principal's role grants
// the permission. A missing principal is ErrUnauthenticated.
func (c Checker) Require(ctx context.Context, permission string) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.ActorID == "" {
		return p, ErrUnauthenticated
	}
	allowed, err := c.Repo.HasPermission(ctx, p.ActorID, permission)
	if err != nil {
		return p, err
	}
	if !allowed {
		return p, ErrForbidden
	}
	return p, nil
}
