// Package rbac maps API token roles to permissions with a casbin enforcer.
package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIncidentsView      Permission = "incidents.view"
	PermIncidentsManage    Permission = "incidents.manage"
	PermParticipantsView   Permission = "participants.view"
	PermParticipantsManage Permission = "participants.manage"
	PermEventsView         Permission = "events.view"
	PermAll                Permission = "*"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj)
`

// DefaultRoles are granted unless the configuration overrides a role by name.
func DefaultRoles() map[string][]Permission {
	return map[string][]Permission{
		"viewer": {PermIncidentsView, PermParticipantsView, PermEventsView},
		"responder": {
			PermIncidentsView, PermIncidentsManage,
			PermParticipantsView, PermParticipantsManage,
			PermEventsView,
		},
		"admin": {PermAll},
	}
}

type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPolicy builds the enforcer from DefaultRoles overlaid with extra. A role
// present in extra replaces the default grants of the same name.
func NewPolicy(extra map[string][]string) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	grants := map[string][]Permission{}
	for role, perms := range DefaultRoles() {
		grants[role] = perms
	}
	for role, perms := range extra {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		converted := make([]Permission, 0, len(perms))
		for _, p := range perms {
			if p = strings.TrimSpace(p); p != "" {
				converted = append(converted, Permission(p))
			}
		}
		grants[role] = converted
	}
	var rules [][]string
	for role, perms := range grants {
		for _, p := range perms {
			rules = append(rules, []string{role, string(p)})
		}
	}
	if len(rules) > 0 {
		if _, err := e.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("rbac policy: %w", err)
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether any of roles grants perm.
func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || perm == "" {
		return false
	}
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Roles lists the role names known to the policy.
func (p *Policy) Roles() []string {
	if p == nil {
		return nil
	}
	subjects, _ := p.enforcer.GetAllSubjects()
	sort.Strings(subjects)
	return subjects
}
