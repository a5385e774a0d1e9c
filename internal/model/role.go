package model

// Role is a backend role tag. Each role implies a backend-defined set of
// default permissions which the console never recomputes.
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RolePurchasingManager Role = "RESPONSABLE_ACHATS"
	RoleWarehouseManager  Role = "MAGASINIER"
	RoleWorkshopManager   Role = "CHEF_ATELIER"
)

// AllRoles lists the roles that can be assigned from the console.
var AllRoles = []Role{
	RoleAdmin,
	RolePurchasingManager,
	RoleWarehouseManager,
	RoleWorkshopManager,
}

var roleLabels = map[Role]string{
	RoleAdmin:             "Administrator",
	RolePurchasingManager: "Purchasing Manager",
	RoleWarehouseManager:  "Warehouse Manager",
	RoleWorkshopManager:   "Workshop Manager",
}

// Label returns the display label of the role, or the raw tag when unknown.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// PrimaryRoleLabel returns the label shown for a user: the first role wins.
func PrimaryRoleLabel(roles []Role) string {
	if len(roles) == 0 {
		return "No Role"
	}
	return roles[0].Label()
}
