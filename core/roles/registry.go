// Package roles enumerates the participant role kinds and the subject pointer
// column each privileged kind maintains.
package roles

import (
	"fmt"
	"strings"
)

type Role string

const (
	Commander   Role = "commander"
	Reporter    Role = "reporter"
	Scribe      Role = "scribe"
	Liaison     Role = "liaison"
	Observer    Role = "observer"
	Assignee    Role = "assignee"
	Participant Role = "participant"
)

// PointerSpec names the subject columns kept in step with the current holder
// of a privileged role. LocationColumn is empty when no snapshot is kept.
type PointerSpec struct {
	Role           Role
	Column         string
	LocationColumn string
}

// Adding a privileged role is one entry here plus its column in the schema.
var pointers = []PointerSpec{
	{Role: Commander, Column: "commander_id", LocationColumn: "commanders_location"},
	{Role: Reporter, Column: "reporter_id", LocationColumn: "reporters_location"},
	{Role: Scribe, Column: "scribe_id"},
	{Role: Liaison, Column: "liaison_id"},
	{Role: Observer, Column: "observer_id"},
	{Role: Assignee, Column: "assignee_id"},
}

var aliases = map[string]Role{
	"incident_commander": Commander,
	"incident commander": Commander,
}

func Default() Role {
	return Participant
}

func All() []Role {
	out := make([]Role, 0, len(pointers)+1)
	for _, p := range pointers {
		out = append(out, p.Role)
	}
	return append(out, Participant)
}

func Privileged() []Role {
	out := make([]Role, 0, len(pointers))
	for _, p := range pointers {
		out = append(out, p.Role)
	}
	return out
}

func IsPrivileged(r Role) bool {
	_, ok := Pointer(r)
	return ok
}

func Pointer(r Role) (PointerSpec, bool) {
	for _, p := range pointers {
		if p.Role == r {
			return p, true
		}
	}
	return PointerSpec{}, false
}

func Pointers() []PointerSpec {
	out := make([]PointerSpec, len(pointers))
	copy(out, pointers)
	return out
}

func (r Role) Valid() bool {
	return r == Participant || IsPrivileged(r)
}

func (r Role) String() string {
	return string(r)
}

// Parse accepts canonical role names, case-insensitively, and the legacy
// "incident_commander" spelling.
func Parse(raw string) (Role, error) {
	val := strings.ToLower(strings.TrimSpace(raw))
	if val == "" {
		return "", fmt.Errorf("roles: empty role")
	}
	if r, ok := aliases[val]; ok {
		return r, nil
	}
	r := Role(val)
	if !r.Valid() {
		return "", fmt.Errorf("roles: unknown role %q", raw)
	}
	return r, nil
}
