package service

// Caller roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// Caller is the authenticated identity behind a request, extracted from the
// bearer token by the API layer.
type Caller struct {
	Subject string
	Role    string
}

// Admin reports whether the caller holds the admin role. Admin callers run
// scripts with the security deny-list disabled and see every user's
// execution history.
func (c Caller) Admin() bool {
	return c.Role == RoleAdmin
}

// RestrictionsEnabled maps the caller's role onto the engine's restrictions
// flag. Only admins bypass the deny-list.
func (c Caller) RestrictionsEnabled() bool {
	return !c.Admin()
}
