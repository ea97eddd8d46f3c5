// Package authz resolves a user's granted permission names into
// resource-scoped capability sets. It only reads grants fetched from the
// backend; authorization is enforced server-side.
package authz

import "strings"

// Role is a named group of permission grants.
type Role struct {
	ID          string
	Name        string
	Permissions []string
}

// Permission is a single granted action, e.g. "view-invoice".
type Permission struct {
	ID    string
	Name  string
	Guard string
}

// User carries the identity and grants returned by the backend.
type User struct {
	ID          string
	Name        string
	Email       string
	Roles       []Role
	Permissions []Permission
}

// Capabilities is the per-resource action set the UI gates on.
type Capabilities struct {
	CanCreate bool
	CanView   bool
	CanUpdate bool
	CanDelete bool
}

// RoleNames returns the user's role names. Nil-safe.
func RoleNames(u *User) []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// grants collects the user's permission names mentioning the resource.
func grants(u *User, resource string) map[string]bool {
	out := make(map[string]bool)
	if u == nil {
		return out
	}
	for _, p := range u.Permissions {
		if strings.Contains(p.Name, resource) {
			out[p.Name] = true
		}
	}
	return out
}

// Resolve maps a user's grants to the capability set for one resource.
// A nil user resolves to no capabilities.
func Resolve(u *User, resource string) Capabilities {
	g := grants(u, resource)
	return Capabilities{
		CanCreate: g["create-"+resource],
		CanView:   g["view-"+resource],
		CanUpdate: g["update-"+resource],
		CanDelete: g["delete-"+resource],
	}
}
