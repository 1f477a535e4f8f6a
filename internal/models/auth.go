package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates roles recognised by the gateway.
type UserRole string

const (
	RoleAdminStaff    UserRole = "ADMIN_STAFF"
	RoleAcademicAdmin UserRole = "ACADEMIC_ADMIN"
	RoleManagement    UserRole = "MANAGEMENT"
	RoleInstructor    UserRole = "INSTRUCTOR"
)

// JWTClaims represents the JWT payload for access tokens issued by the
// platform's identity service. This gateway only verifies them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
