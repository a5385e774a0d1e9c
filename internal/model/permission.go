package model

// Permission is an opaque permission tag issued by the backend.
// Authorization treats permissions as flat strings; categories exist for display only.
type Permission string

const (
	// PermissionSuppliersRead allows viewing suppliers.
	PermissionSuppliersRead Permission = "SUPPLIERS_READ"

	// PermissionSuppliersWrite allows creating, updating, and deleting suppliers.
	PermissionSuppliersWrite Permission = "SUPPLIERS_WRITE"

	// PermissionProductsRead allows viewing products.
	PermissionProductsRead Permission = "PRODUCTS_READ"

	// PermissionProductsWrite allows creating, updating, and deleting products.
	PermissionProductsWrite Permission = "PRODUCTS_WRITE"

	// PermissionProductsConfigureAlerts allows configuring stock alert thresholds.
	PermissionProductsConfigureAlerts Permission = "PRODUCTS_CONFIGURE_ALERTS"

	// PermissionOrdersRead allows viewing supplier orders.
	PermissionOrdersRead Permission = "ORDERS_READ"

	// PermissionOrdersWrite allows creating and editing supplier orders.
	PermissionOrdersWrite Permission = "ORDERS_WRITE"

	// PermissionOrdersValidate allows validating supplier orders.
	PermissionOrdersValidate Permission = "ORDERS_VALIDATE"

	// PermissionOrdersCancel allows cancelling supplier orders.
	PermissionOrdersCancel Permission = "ORDERS_CANCEL"

	// PermissionOrdersReceive allows receiving delivered orders into stock.
	PermissionOrdersReceive Permission = "ORDERS_RECEIVE"

	// PermissionStockRead allows viewing stock levels.
	PermissionStockRead Permission = "STOCK_READ"

	// PermissionStockValuation allows viewing stock valuation.
	PermissionStockValuation Permission = "STOCK_VALUATION"

	// PermissionStockHistory allows viewing stock movement history.
	PermissionStockHistory Permission = "STOCK_HISTORY"

	// PermissionExitSlipsRead allows viewing exit slips.
	PermissionExitSlipsRead Permission = "EXIT_SLIPS_READ"

	// PermissionExitSlipsCreate allows creating exit slips.
	PermissionExitSlipsCreate Permission = "EXIT_SLIPS_CREATE"

	// PermissionExitSlipsValidate allows validating exit slips.
	PermissionExitSlipsValidate Permission = "EXIT_SLIPS_VALIDATE"

	// PermissionExitSlipsCancel allows cancelling exit slips.
	PermissionExitSlipsCancel Permission = "EXIT_SLIPS_CANCEL"

	// PermissionAdminUsers allows managing user roles and explicit permissions.
	PermissionAdminUsers Permission = "ADMIN_USERS"
)

// PermissionStrings converts a permission slice to plain strings.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// ParsePermissions converts plain strings to permissions, dropping empty values.
func ParsePermissions(values []string) []Permission {
	out := make([]Permission, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, Permission(v))
	}
	return out
}
