package enums

// UserRole is carried in access tokens and gates seller/admin routes.
type UserRole string

const (
	RoleBuyer  UserRole = "buyer"
	RoleSeller UserRole = "seller"
	RoleAdmin  UserRole = "admin"
)

var userRoles = []UserRole{RoleBuyer, RoleSeller, RoleAdmin}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return member(userRoles, r) }

func ParseUserRole(value string) (UserRole, error) {
	return parse(userRoles, value, "user role")
}
