package jwt

import (
	"net/http"
	"strings"
)

// TokenQueryParam is the query parameter consulted when a client cannot set headers
// on the WebSocket handshake (browsers).
const TokenQueryParam = "access_token"

// ExtractBearerToken returns the token from an "Authorization: Bearer <token>" header,
// or an empty string if the header is absent or uses another scheme.
func ExtractBearerToken(header http.Header) string {
	authHeader := header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// TokenFromRequest extracts the handshake token, preferring the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := ExtractBearerToken(r.Header); token != "" {
		return token
	}
	return r.URL.Query().Get(TokenQueryParam)
}
