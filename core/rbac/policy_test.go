package rbac

import "testing"

func TestDefaultRoles(t *testing.T) {
	p, err := NewPolicy(nil)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	cases := []struct {
		roles []string
		perm  Permission
		want  bool
	}{
		{[]string{"viewer"}, PermIncidentsView, true},
		{[]string{"viewer"}, PermParticipantsManage, false},
		{[]string{"Responder"}, PermParticipantsManage, true},
		{[]string{"viewer", "responder"}, PermIncidentsManage, true},
		{[]string{"admin"}, PermParticipantsManage, true},
		{[]string{"admin"}, Permission("anything.else"), true},
		{[]string{"ghost"}, PermIncidentsView, false},
		{nil, PermIncidentsView, false},
	}
	for _, tc := range cases {
		if got := p.Allowed(tc.roles, tc.perm); got != tc.want {
			t.Fatalf("Allowed(%v, %s) = %v, want %v", tc.roles, tc.perm, got, tc.want)
		}
	}
}

func TestConfiguredRolesOverrideDefaults(t *testing.T) {
	p, err := NewPolicy(map[string][]string{
		"viewer": {"incidents.view"},
		"scribe": {"participants.view", "events.view"},
	})
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if p.Allowed([]string{"viewer"}, PermEventsView) {
		t.Fatalf("viewer override should drop events.view")
	}
	if !p.Allowed([]string{"scribe"}, PermEventsView) {
		t.Fatalf("scribe should see events")
	}
	roles := p.Roles()
	if len(roles) != 4 || roles[0] != "admin" || roles[3] != "viewer" {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	var p *Policy
	if p.Allowed([]string{"admin"}, PermIncidentsView) {
		t.Fatalf("nil policy must deny")
	}
}
