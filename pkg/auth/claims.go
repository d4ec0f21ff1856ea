package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	Role      enums.ActorRole
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. SubjectID is a
// customer id for CUSTOMER tokens and a staff member id otherwise.
type AccessTokenClaims struct {
	SubjectID uuid.UUID       `json:"sub_id"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
