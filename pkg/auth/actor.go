package auth

import (
	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// Actor is who performs a state change. Background jobs and gateway callbacks
// run as SystemActor.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor is the actor recorded for jobs with no human behind them.
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

// CustomerActor is the actor recorded for customer-driven changes.
func CustomerActor(customerID uuid.UUID) Actor {
	return Actor{ID: customerID, Role: enums.ActorRoleCustomer}
}

// IDPtr returns nil for the system actor so nullable columns stay NULL.
func (a Actor) IDPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

// Actor returns the actor the token speaks for.
func (c *AccessTokenClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{ID: c.SubjectID, Role: c.Role}
}
