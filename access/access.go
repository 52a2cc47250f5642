/*
Package access decides which roles may perform which operations.

PURPOSE:
  A pure function of (role, operation). The api package calls Allowed
  before invoking the ledger; the ledger itself never sees a role.

MATRIX:
  operation          admin  treasurer  registrar  viewer
  view_reports         x        x          x        x
  manage_members       x        x          x
  delete_members       x
  manage_suppliers     x        x
  record_payments      x        x
  delete_payments      x        x
  manage_accounts      x
  view_audit           x
*/
package access

import "fmt"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTreasurer Role = "treasurer"
	RoleRegistrar Role = "registrar"
	RoleViewer    Role = "viewer"
)

// ParseRole accepts the four known role names.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Operation string

const (
	ViewReports     Operation = "view_reports"
	ManageMembers   Operation = "manage_members"
	DeleteMembers   Operation = "delete_members"
	ManageSuppliers Operation = "manage_suppliers"
	RecordPayments  Operation = "record_payments"
	DeletePayments  Operation = "delete_payments"
	ManageAccounts  Operation = "manage_accounts"
	ViewAudit       Operation = "view_audit"
)

var knownRoles = map[Role]bool{RoleAdmin: true, RoleTreasurer: true, RoleRegistrar: true, RoleViewer: true}

var grants = map[Operation][]Role{
	ViewReports:     {RoleAdmin, RoleTreasurer, RoleRegistrar, RoleViewer},
	ManageMembers:   {RoleAdmin, RoleTreasurer, RoleRegistrar},
	DeleteMembers:   {RoleAdmin},
	ManageSuppliers: {RoleAdmin, RoleTreasurer},
	RecordPayments:  {RoleAdmin, RoleTreasurer},
	DeletePayments:  {RoleAdmin, RoleTreasurer},
	ManageAccounts:  {RoleAdmin},
	ViewAudit:       {RoleAdmin},
}

// Allowed reports whether role may perform op. Unknown roles and
// operations are denied.
func Allowed(role Role, op Operation) bool {
	for _, r := range grants[op] {
		if r == role {
			return true
		}
	}
	return false
}
