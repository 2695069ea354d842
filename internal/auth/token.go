package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNoCredential means the request carried no token at all. Callers treat
	// it as an anonymous guest, not as a failure.
	ErrNoCredential = errors.New("no credential presented")
	ErrInvalidToken = errors.New("invalid token")
)

// ExtractTokenFromRequest returns the bearer token of r. Browsers cannot set
// headers on a WebSocket or EventSource, so the token query parameter is
// accepted as well.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Bearer token format: "Bearer {token}"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", errors.New("authorization header format must be 'Bearer {token}'")
		}
		return parts[1], nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrNoCredential
}
