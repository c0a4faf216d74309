package authz

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleViewer
}

// IsReadOnly reports whether the role may only issue safe HTTP methods.
func IsReadOnly(role string) bool {
	return role == RoleViewer
}
