package auth

import "github.com/golang-jwt/jwt/v5"

type Authenticator interface {
	GenerateToken(userID int64, email, name string) (string, error)
	ValidateToken(token string) (*jwt.Token, error)
}
