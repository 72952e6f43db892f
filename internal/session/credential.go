package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type credentialClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// DecodeCredential reads the claims of an identity credential without checking
// its signature. The result is an optimistic display identity only.
func DecodeCredential(credential string) (Session, error) {
	claims := &credentialClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return identityClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}.session()
}
