package jwt

import "github.com/golang-jwt/jwt/v5"

// JudgeClaims identify a judge or coordinator. Subject is the judge id.
type JudgeClaims struct {
	jwt.RegisteredClaims
	Event string `json:"event,omitempty"`
	Role  string `json:"role"`
}

type Role string

const (
	RoleJudge       Role = "judge"
	RoleCoordinator Role = "coordinator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleJudge || r == RoleCoordinator
}

// CanReposition reports whether the role may reorder entries.
func (r Role) CanReposition() bool {
	return r == RoleCoordinator
}
