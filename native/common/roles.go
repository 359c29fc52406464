package common

import (
	"fmt"
	"strconv"
	"strings"
)

// Role identifies an access-control role. Values are opaque tags; only
// equality matters.
type Role uint32

// RoleSet names the roles contracts check. It is injected at construction so
// every contract in a deployment agrees on the same tags.
type RoleSet struct {
	DefaultAdmin Role
	Minter       Role
	Burner       Role
	Setter       Role
}

// DefaultRoles returns the stock role tags.
func DefaultRoles() RoleSet {
	return RoleSet{
		DefaultAdmin: 0,
		Minter:       4254773782,
		Burner:       1711057910,
		Setter:       793457621,
	}
}

// Validate rejects role sets whose tags collide.
func (r RoleSet) Validate() error {
	seen := map[Role]string{}
	for _, pair := range []struct {
		name string
		role Role
	}{
		{"admin", r.DefaultAdmin},
		{"minter", r.Minter},
		{"burner", r.Burner},
		{"setter", r.Setter},
	} {
		if other, ok := seen[pair.role]; ok {
			return fmt.Errorf("roles: %s and %s share tag %d", other, pair.name, pair.role)
		}
		seen[pair.role] = pair.name
	}
	return nil
}

// Name returns the human-readable name of role, or its number when unknown.
func (r RoleSet) Name(role Role) string {
	switch role {
	case r.DefaultAdmin:
		return "admin"
	case r.Minter:
		return "minter"
	case r.Burner:
		return "burner"
	case r.Setter:
		return "setter"
	default:
		return strconv.FormatUint(uint64(role), 10)
	}
}

// Parse accepts a role name or a decimal tag.
func (r RoleSet) Parse(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "default_admin":
		return r.DefaultAdmin, nil
	case "minter":
		return r.Minter, nil
	case "burner":
		return r.Burner, nil
	case "setter":
		return r.Setter, nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("roles: unknown role %q", raw)
	}
	return Role(value), nil
}
