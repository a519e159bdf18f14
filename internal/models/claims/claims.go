package claims

import "github.com/golang-jwt/jwt/v4"

// Auth are the claims of an admin session token.
type Auth struct {
	jwt.RegisteredClaims
	Login string `json:"login"`
}
