package auth

import (
	"context"

	"github.com/pkg/errors"
)

const (
	XUserIDHeader   = "X-User-Id"
	XUserRoleHeader = "X-User-Role"

	RoleAdmin     = "admin"
	RoleLibrarian = "librarian"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	userRoleKey
)

var ErrNoIdentity = errors.New("identity is missing")

func SetAuthContext(ctx context.Context, userID int, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, userRoleKey, role)
}

func GetUserID(ctx context.Context) (int, error) {
	id, ok := ctx.Value(userIDKey).(int)
	if !ok || id <= 0 {
		return 0, ErrNoIdentity
	}
	return id, nil
}

func GetRole(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}
