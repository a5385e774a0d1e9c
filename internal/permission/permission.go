// Package permission resolves a user's effective permissions and answers
// authorization queries. Everything here is pure: no I/O and no shared state.
package permission

import (
	"slices"

	"github.com/stemsi/tricol-console/internal/model"
)

// Effective returns the union of the user's explicit and role-default
// permissions. Duplicates collapse; order follows first appearance.
func Effective(u model.UserIdentity) []model.Permission {
	seen := make(map[model.Permission]struct{}, len(u.Permissions)+len(u.RoleDefaultPermissions))
	out := make([]model.Permission, 0, len(u.Permissions)+len(u.RoleDefaultPermissions))
	for _, list := range [][]model.Permission{u.Permissions, u.RoleDefaultPermissions} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Has reports whether p is in the user's effective set. A nil user has nothing.
func Has(u *model.UserIdentity, p model.Permission) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Permissions, p) || slices.Contains(u.RoleDefaultPermissions, p)
}

// HasAny reports whether the user holds at least one of ps.
func HasAny(u *model.UserIdentity, ps []model.Permission) bool {
	for _, p := range ps {
		if Has(u, p) {
			return true
		}
	}
	return false
}

// HasRole reports whether r is one of the user's roles.
func HasRole(u *model.UserIdentity, r model.Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, r)
}

// IsRoleDefault reports whether p is granted to the user by a role.
func IsRoleDefault(u model.UserIdentity, p model.Permission) bool {
	return slices.Contains(u.RoleDefaultPermissions, p)
}

// IsExplicit reports whether p is an explicit per-user grant.
func IsExplicit(u model.UserIdentity, p model.Permission) bool {
	return slices.Contains(u.Permissions, p)
}

// Requirement is the authorization metadata attached to a protected route:
// a set of acceptable roles or a set of acceptable permissions.
// The zero value admits any authenticated user.
type Requirement struct {
	Roles       []model.Role
	Permissions []model.Permission
}

// AnyPermission builds a requirement satisfied by holding one of ps.
func AnyPermission(ps ...model.Permission) Requirement {
	return Requirement{Permissions: ps}
}

// AnyRole builds a requirement satisfied by holding one of rs.
func AnyRole(rs ...model.Role) Requirement {
	return Requirement{Roles: rs}
}

// Open reports whether the requirement admits every authenticated user.
func (r Requirement) Open() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

// SatisfiedBy reports whether the user meets the requirement ("any of" semantics).
func (r Requirement) SatisfiedBy(u *model.UserIdentity) bool {
	if u == nil {
		return false
	}
	if r.Open() {
		return true
	}
	for _, role := range r.Roles {
		if HasRole(u, role) {
			return true
		}
	}
	return HasAny(u, r.Permissions)
}
