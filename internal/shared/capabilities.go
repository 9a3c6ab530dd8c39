package shared

// Core platform capabilities.
const (
	CapUsersView        = "users.view"
	CapUsersCreate      = "users.create"
	CapUsersUpdate      = "users.update"
	CapUsersManageRoles = "users.manage_roles"

	CapRolesView   = "roles.view"
	CapRolesCreate = "roles.create"
	CapRolesUpdate = "roles.update"
	CapRolesDelete = "roles.delete"

	CapPermissionsView   = "permissions.view"
	CapPermissionsManage = "permissions.manage"

	CapAuthzCheck = "authz.check"
	CapJobsView   = "jobs.view"
)

// CoreScopes lists all capabilities related to the core platform.
func CoreScopes() []string {
	return []string{
		CapUsersView,
		CapUsersCreate,
		CapUsersUpdate,
		CapUsersManageRoles,
		CapRolesView,
		CapRolesCreate,
		CapRolesUpdate,
		CapRolesDelete,
		CapPermissionsView,
		CapPermissionsManage,
		CapAuthzCheck,
		CapJobsView,
	}
}

// CapabilityDef describes a seedable capability.
type CapabilityDef struct {
	Code     string
	Name     string
	Category string
}

// Catalog returns the full capability catalog for the platform.
// Codes follow the <resource>.<action> convention and are opaque to
// the authorization engine.
func Catalog() []CapabilityDef {
	return []CapabilityDef{
		{Code: CapUsersView, Name: "View Users", Category: "User Management"},
		{Code: CapUsersCreate, Name: "Create Users", Category: "User Management"},
		{Code: CapUsersUpdate, Name: "Update Users", Category: "User Management"},
		{Code: CapUsersManageRoles, Name: "Manage User Roles", Category: "User Management"},

		{Code: CapRolesView, Name: "View Roles", Category: "Access Control"},
		{Code: CapRolesCreate, Name: "Create Roles", Category: "Access Control"},
		{Code: CapRolesUpdate, Name: "Update Roles", Category: "Access Control"},
		{Code: CapRolesDelete, Name: "Delete Roles", Category: "Access Control"},
		{Code: CapPermissionsView, Name: "View Permissions", Category: "Access Control"},
		{Code: CapPermissionsManage, Name: "Manage Permissions", Category: "Access Control"},
		{Code: CapAuthzCheck, Name: "Check Authorization", Category: "Access Control"},
		{Code: CapJobsView, Name: "View Background Jobs", Category: "Operations"},

		{Code: "properties.view", Name: "View Properties", Category: "Property Management"},
		{Code: "properties.create", Name: "Create Properties", Category: "Property Management"},
		{Code: "properties.update", Name: "Update Properties", Category: "Property Management"},
		{Code: "properties.approve", Name: "Approve Properties", Category: "Property Management"},
		{Code: "properties.publish", Name: "Publish Properties", Category: "Property Management"},

		{Code: "investments.view", Name: "View Investments", Category: "Investment Management"},
		{Code: "investments.create", Name: "Create Investments", Category: "Investment Management"},
		{Code: "investments.approve", Name: "Approve Investments", Category: "Investment Management"},
		{Code: "investments.cancel", Name: "Cancel Investments", Category: "Investment Management"},
		{Code: "investments.view_all", Name: "View All Investments", Category: "Investment Management"},

		{Code: "wallet.view", Name: "View Wallet", Category: "Financial"},
		{Code: "wallet.add_funds", Name: "Add Funds to Wallet", Category: "Financial"},
		{Code: "wallet.withdraw", Name: "Withdraw from Wallet", Category: "Financial"},
		{Code: "transactions.view", Name: "View Transactions", Category: "Financial"},
		{Code: "transactions.view_all", Name: "View All Transactions", Category: "Financial"},

		{Code: "commissions.view", Name: "View Commissions", Category: "Commission Management"},
		{Code: "commissions.calculate", Name: "Calculate Commissions", Category: "Commission Management"},
		{Code: "commissions.approve", Name: "Approve Commissions", Category: "Commission Management"},
		{Code: "commissions.payout", Name: "Process Commission Payouts", Category: "Commission Management"},
	}
}
