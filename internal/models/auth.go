package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the caller roles the API distinguishes.
type UserRole string

// Supported roles.
const (
	RoleAdmin     UserRole = "ADMIN"
	RoleStudent   UserRole = "STUDENT"
	RoleProfessor UserRole = "PROFESSOR"
)

// JWTClaims represents the JWT payload for access tokens. Tokens are issued
// by the identity provider in front of this API; this service only verifies
// them and maps the caller onto a student or professor record.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	StudentID   int64    `json:"student_id,omitempty"`
	ProfessorID int64    `json:"professor_id,omitempty"`
	FullName    string   `json:"full_name"`
	jwt.RegisteredClaims
}
