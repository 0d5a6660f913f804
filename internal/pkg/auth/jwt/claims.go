package jwt

import "github.com/golang-jwt/jwt"

// TokenUser is the user reference carried inside an access token.
type TokenUser struct {
	ID int64 `json:"id"`
}

// Payload defines the claims of a messenger access token. The Identity service issues these
// tokens; this package only reads them, except in local identity mode and tests.
type Payload struct {
	// StandardClaims embeds the registered fields (exp, iat, iss).
	jwt.StandardClaims

	// User identifies the token holder. A token without it is rejected by the gateways.
	User *TokenUser `json:"user,omitempty"`
}
