package config

import (
	"fmt"
	"os"
	"time"

	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/governor"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// GovernancePolicy is the resolved, immutable policy the governor runs on:
// the permission table, the quota tables, and the route-to-class assignments.
// Built once at startup; a malformed policy file fails startup, never a
// request.
type GovernancePolicy struct {
	Rules  []auth.PermissionRule
	Quotas governor.QuotaPolicy
	Routes map[string]auth.RouteClass
}

// RouteClassFor resolves the class assigned to a registered route. The route
// key is "METHOD pattern", matching net/http mux patterns.
func (p *GovernancePolicy) RouteClassFor(method, pattern string) (auth.RouteClass, error) {
	class, ok := p.Routes[method+" "+pattern]
	if !ok {
		return "", fmt.Errorf("no route class assigned to %s %s", method, pattern)
	}
	return class, nil
}

type policyFile struct {
	Permissions []permissionEntry `yaml:"permissions" validate:"required,min=1,dive"`
	Quotas      []quotaEntry      `yaml:"quotas" validate:"required,min=1,dive"`
	Routes      []routeEntry      `yaml:"routes" validate:"required,min=1,dive"`
}

type permissionEntry struct {
	Role  string `yaml:"role" validate:"required,oneof=admin manager user anonymous"`
	Class string `yaml:"class" validate:"required"`
}

type quotaEntry struct {
	Class   string        `yaml:"class" validate:"required"`
	Windows []windowEntry `yaml:"windows" validate:"required,min=1,dive"`
}

type windowEntry struct {
	Max    int    `yaml:"max" validate:"required,min=1"`
	Window string `yaml:"window" validate:"required"`
}

type routeEntry struct {
	Method  string `yaml:"method" validate:"required"`
	Pattern string `yaml:"pattern" validate:"required"`
	Class   string `yaml:"class" validate:"required"`
}

// LoadPolicy reads the governance policy from a YAML file, or returns the
// built-in production defaults when path is empty.
func LoadPolicy(path string) (*GovernancePolicy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("validate policy file: %w", err)
	}

	return file.resolve()
}

func (f policyFile) resolve() (*GovernancePolicy, error) {
	policy := &GovernancePolicy{
		Quotas: make(governor.QuotaPolicy, len(f.Quotas)),
		Routes: make(map[string]auth.RouteClass, len(f.Routes)),
	}

	for _, entry := range f.Permissions {
		class, err := parseRouteClass(entry.Class)
		if err != nil {
			return nil, fmt.Errorf("permission for role %q: %w", entry.Role, err)
		}
		policy.Rules = append(policy.Rules, auth.PermissionRule{
			Role:  auth.Role(entry.Role),
			Class: class,
		})
	}

	for _, entry := range f.Quotas {
		class, err := parseRouteClass(entry.Class)
		if err != nil {
			return nil, fmt.Errorf("quota: %w", err)
		}
		if _, dup := policy.Quotas[class]; dup {
			return nil, fmt.Errorf("duplicate quota for class %q", class)
		}
		windows := make([]governor.QuotaWindow, 0, len(entry.Windows))
		for _, w := range entry.Windows {
			duration, err := time.ParseDuration(w.Window)
			if err != nil {
				return nil, fmt.Errorf("quota for class %q: bad window %q: %w", class, w.Window, err)
			}
			if duration <= 0 {
				return nil, fmt.Errorf("quota for class %q: window must be positive", class)
			}
			windows = append(windows, governor.QuotaWindow{Max: w.Max, Window: duration})
		}
		policy.Quotas[class] = windows
	}

	for _, entry := range f.Routes {
		class, err := parseRouteClass(entry.Class)
		if err != nil {
			return nil, fmt.Errorf("route %s %s: %w", entry.Method, entry.Pattern, err)
		}
		key := entry.Method + " " + entry.Pattern
		// Each endpoint carries exactly one class: a second assignment is a
		// configuration error, surfaced at startup rather than request time.
		if _, dup := policy.Routes[key]; dup {
			return nil, fmt.Errorf("route %s assigned more than one class", key)
		}
		policy.Routes[key] = class
	}

	return policy, nil
}

func parseRouteClass(raw string) (auth.RouteClass, error) {
	switch class := auth.RouteClass(raw); class {
	case auth.RouteClassPublic, auth.RouteClassAuth, auth.RouteClassAdminWrite,
		auth.RouteClassManagerWrite, auth.RouteClassUserWrite:
		return class, nil
	default:
		return "", fmt.Errorf("unknown route class %q", raw)
	}
}

// DefaultPolicy reproduces the production governance tables.
func DefaultPolicy() *GovernancePolicy {
	return &GovernancePolicy{
		Rules: []auth.PermissionRule{
			{Role: auth.RoleAnonymous, Class: auth.RouteClassPublic},
			{Role: auth.RoleAnonymous, Class: auth.RouteClassAuth},
			{Role: auth.RoleUser, Class: auth.RouteClassPublic},
			{Role: auth.RoleUser, Class: auth.RouteClassAuth},
			{Role: auth.RoleUser, Class: auth.RouteClassUserWrite},
			{Role: auth.RoleManager, Class: auth.RouteClassPublic},
			{Role: auth.RoleManager, Class: auth.RouteClassAuth},
			{Role: auth.RoleManager, Class: auth.RouteClassUserWrite},
			{Role: auth.RoleManager, Class: auth.RouteClassManagerWrite},
			{Role: auth.RoleAdmin, Class: auth.RouteClassPublic},
			{Role: auth.RoleAdmin, Class: auth.RouteClassAuth},
			{Role: auth.RoleAdmin, Class: auth.RouteClassUserWrite},
			{Role: auth.RoleAdmin, Class: auth.RouteClassManagerWrite},
			{Role: auth.RoleAdmin, Class: auth.RouteClassAdminWrite},
		},
		Quotas: governor.DefaultQuotaPolicy(),
		Routes: map[string]auth.RouteClass{
			"POST /api/v1/auth/register": auth.RouteClassAuth,
			"POST /api/v1/auth/login":    auth.RouteClassAuth,
			"POST /api/v1/auth/refresh":  auth.RouteClassAuth,
			"POST /api/v1/auth/logout":   auth.RouteClassAuth,
			"GET /api/v1/events":         auth.RouteClassPublic,
			"POST /api/v1/events":        auth.RouteClassManagerWrite,
			"DELETE /api/v1/events/{id}": auth.RouteClassAdminWrite,
			"GET /api/v1/profile":        auth.RouteClassUserWrite,
			"PUT /api/v1/profile":        auth.RouteClassUserWrite,
		},
	}
}
