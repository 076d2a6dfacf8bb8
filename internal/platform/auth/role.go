package auth

import (
	"context"
	"strings"
)

// Role is a staff role resolved once at the authentication boundary.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleScientist    Role = "scientist"
	RoleTechnician   Role = "technician"
	RoleAccountant   Role = "accountant"
	RoleReceptionist Role = "receptionist"
	RoleEDEC         Role = "edec"
	RolePsychologist Role = "psychologist"
)

// precedence orders roles from most to least privileged. An actor carrying
// several roles reports the first one listed here as its Role.
var precedence = []Role{
	RoleAdmin,
	RoleScientist,
	RoleTechnician,
	RoleAccountant,
	RoleReceptionist,
	RoleEDEC,
	RolePsychologist,
}

// StaffRoles returns every known role, most privileged first.
func StaffRoles() []Role {
	return append([]Role(nil), precedence...)
}

var knownRoles = func() map[Role]int {
	m := make(map[Role]int, len(precedence))
	for i, r := range precedence {
		m[r] = i
	}
	return m
}()

// ParseRole maps a claim value onto a Role. Case, surrounding whitespace and
// space or hyphen separators are normalized; anything else is rejected.
func ParseRole(s string) (Role, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	r := Role(norm)
	if _, ok := knownRoles[r]; !ok {
		return "", false
	}
	return r, true
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// Actor identifies the authenticated caller of an operation. Role is the
// most privileged role held; Roles lists every known role from the claims.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
	Roles []Role `json:"roles,omitempty"`
}

// Is reports whether the actor holds one of the given roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
		for _, held := range a.Roles {
			if held == r {
				return true
			}
		}
	}
	return false
}

// Label is the identity recorded on audit fields such as reviewed_by.
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// ResolveActor builds an Actor from raw claim values. Unknown roles are
// dropped. The remaining roles are kept in precedence order and the first
// becomes the acting Role.
func ResolveActor(id, name string, claimRoles []string) (Actor, bool) {
	held := make(map[Role]bool, len(claimRoles))
	for _, raw := range claimRoles {
		if r, ok := ParseRole(raw); ok {
			held[r] = true
		}
	}
	a := Actor{ID: id, Name: name}
	for _, r := range precedence {
		if held[r] {
			a.Roles = append(a.Roles, r)
		}
	}
	if len(a.Roles) == 0 {
		return a, false
	}
	a.Role = a.Roles[0]
	return a, true
}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
