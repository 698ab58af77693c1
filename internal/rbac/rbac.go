// Package rbac orders item permissions.
package rbac

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

func rank(p Permission) int {
	switch p {
	case PermissionAdmin:
		return 3
	case PermissionWrite:
		return 2
	case PermissionRead:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether held grants everything required grants.
func AtLeast(held, required Permission) bool {
	if rank(required) == 0 {
		return false
	}
	return rank(held) >= rank(required)
}

// Normalize maps unknown values to no permission at all.
func Normalize(permission string) Permission {
	switch Permission(permission) {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return Permission(permission)
	default:
		return ""
	}
}

