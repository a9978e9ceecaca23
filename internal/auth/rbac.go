package auth

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleUser      Role = "user"
	RoleAnonymous Role = "anonymous"
)

// RouteClass is a static category label grouping endpoints that share one
// authorization and quota policy. Every endpoint carries exactly one class,
// assigned at startup.
type RouteClass string

const (
	RouteClassPublic       RouteClass = "public"
	RouteClassAuth         RouteClass = "auth"
	RouteClassAdminWrite   RouteClass = "admin-write"
	RouteClassManagerWrite RouteClass = "manager-write"
	RouteClassUserWrite    RouteClass = "user-write"
)

var ErrForbidden = errors.New("forbidden")

// NormalizeRole maps a free-form role string to a known role. Unknown values
// degrade to anonymous, never to a privileged role.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleManager):
		return RoleManager
	case string(RoleUser):
		return RoleUser
	default:
		return RoleAnonymous
	}
}

// PermissionRule grants a role access to one route class.
type PermissionRule struct {
	Role  Role
	Class RouteClass
}

// Authorizer answers whether a (role, route class) pair is permitted. The
// table is built once at startup and never mutated afterwards; any pair
// absent from it is denied.
type Authorizer struct {
	rules map[permKey]struct{}
}

type permKey struct {
	role  Role
	class RouteClass
}

func NewAuthorizer(rules []PermissionRule) (*Authorizer, error) {
	table := make(map[permKey]struct{}, len(rules))
	for _, rule := range rules {
		if rule.Role == RoleAnonymous && rule.Class != RouteClassPublic && rule.Class != RouteClassAuth {
			return nil, fmt.Errorf("permission table: anonymous may not be granted %q", rule.Class)
		}
		table[permKey{role: rule.Role, class: rule.Class}] = struct{}{}
	}
	return &Authorizer{rules: table}, nil
}

// Authorize returns nil when the role may access the route class, and
// ErrForbidden otherwise. The method is carried for diagnostics only: the
// permission table is keyed on (role, class).
func (a *Authorizer) Authorize(role Role, class RouteClass, method string) error {
	if _, ok := a.rules[permKey{role: role, class: class}]; ok {
		return nil
	}
	return fmt.Errorf("%w: role %q on %s %q", ErrForbidden, role, method, class)
}
