package enums

import "slices"

// ActorRole identifies who triggered a state change.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "CUSTOMER"
	ActorRoleStaff    ActorRole = "STAFF"
	ActorRoleAdmin    ActorRole = "ADMIN"
	ActorRoleSystem   ActorRole = "SYSTEM"
)

var actorRoles = []ActorRole{ActorRoleCustomer, ActorRoleStaff, ActorRoleAdmin, ActorRoleSystem}

func (r ActorRole) IsValid() bool { return slices.Contains(actorRoles, r) }

// IsStaff reports whether the role may drive fulfillment transitions.
func (r ActorRole) IsStaff() bool {
	return r == ActorRoleStaff || r == ActorRoleAdmin
}
