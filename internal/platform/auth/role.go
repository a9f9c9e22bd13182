package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the clinical or patient role a user registers with. Administrative
// rights are a separate flag on the principal, not a role.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
)

// ParseRole is the only place role strings are interpreted.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RoleNurse:
		return RoleNurse, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsStaff reports whether the role carries a staff record.
func (r Role) IsStaff() bool {
	switch r {
	case RoleDoctor, RoleNurse:
		return true
	case RolePatient:
		return false
	}
	return false
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  uuid.UUID
	Role    Role
	IsAdmin bool
}

// Is reports whether the principal holds one of roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	TokenKey     contextKey = "token_claims"
)

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(TokenKey).(*Claims)
	return c
}
