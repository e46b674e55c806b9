package auth

// Role is the authorization level of a caller.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleMember      Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleMember:
		return true
	}
	return false
}

// Principal is the explicit authorization context handed to every workflow.
// Workflows never read roles from ambient state.
type Principal struct {
	Subject  string `json:"subject"`
	TenantID string `json:"tenantId,omitempty"`
	Role     Role   `json:"role"`
}

// System is used by startup seeding, the CLI and the audit loop.
var System = Principal{Subject: "system", Role: RoleSuperAdmin}

// SuperAdmin returns a super-admin principal for the given subject.
func SuperAdmin(subject string) Principal {
	return Principal{Subject: subject, Role: RoleSuperAdmin}
}

// TenantAdmin returns an admin principal scoped to one tenant.
func TenantAdmin(subject, tenantID string) Principal {
	return Principal{Subject: subject, TenantID: tenantID, Role: RoleTenantAdmin}
}

// Member returns a regular member principal scoped to one tenant.
func Member(subject, tenantID string) Principal {
	return Principal{Subject: subject, TenantID: tenantID, Role: RoleMember}
}

func (p Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

// CanManageCatalog reports whether p may create, edit or delete plans and
// change subscription state.
func (p Principal) CanManageCatalog() bool {
	return p.IsSuperAdmin()
}

// CanAccessTenant reports whether p may read or create resources for tenantID.
func (p Principal) CanAccessTenant(tenantID string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	return tenantID != "" && p.TenantID == tenantID && p.Role.Valid()
}

// CanManageTenant reports whether p may perform destructive operations
// (deletes, staff status changes, key management) inside tenantID.
func (p Principal) CanManageTenant(tenantID string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	return tenantID != "" && p.TenantID == tenantID && p.Role == RoleTenantAdmin
}
