package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connect-kitchen/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a raw token into the staff actor it was issued for.
type Verifier interface {
	Verify(ctx context.Context, raw string) (models.Actor, error)
}

// loginClaims is the token signed by the login endpoint with the shared
// secret: {"user": {"id", "role", "username"}, "exp": ...}.
type loginClaims struct {
	models.TokenClaims
	jwt.RegisteredClaims
}

type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (models.Actor, error) {
	var claims loginClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user := claims.User
	if user.ID == "" {
		return models.Actor{}, fmt.Errorf("%w: token has no user id", ErrInvalidToken)
	}
	if !user.Role.Staff() {
		return models.Actor{}, fmt.Errorf("%w: role %q cannot sign in", ErrInvalidToken, user.Role)
	}
	return models.Actor{ID: user.ID, Role: user.Role, Username: user.Username}, nil
}

// OIDCVerifier accepts tokens from an OpenID Connect issuer. The subject
// becomes the actor id, the role is read from roleClaim.
type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	roleClaim string
}

func NewOIDCVerifier(ctx context.Context, issuer, roleClaim string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	// SkipClientIDCheck: tokens are minted for the frontend client, not for us.
	return &OIDCVerifier{
		verifier:  provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
		roleClaim: roleClaim,
	}, nil
}

// NewOIDCVerifierWithKeySet skips discovery and checks signatures against
// keys directly.
func NewOIDCVerifierWithKeySet(issuer string, keys oidc.KeySet, roleClaim string) *OIDCVerifier {
	return &OIDCVerifier{
		verifier:  oidc.NewVerifier(issuer, keys, &oidc.Config{SkipClientIDCheck: true}),
		roleClaim: roleClaim,
	}
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (models.Actor, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return models.Actor{}, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidToken, err)
	}

	role, ok := staffRole(lookupClaim(claims, v.roleClaim))
	if !ok {
		return models.Actor{}, fmt.Errorf("%w: no staff role in claim %q", ErrInvalidToken, v.roleClaim)
	}
	username, _ := claims["preferred_username"].(string)
	return models.Actor{ID: idToken.Subject, Role: role, Username: username}, nil
}

// lookupClaim follows a dotted path such as "realm_access.roles".
func lookupClaim(claims map[string]interface{}, path string) interface{} {
	var current interface{} = claims
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// staffRole accepts a single role or a list of roles and returns the first
// staff role, matched case-insensitively.
func staffRole(value interface{}) (models.Role, bool) {
	var candidates []string
	switch v := value.(type) {
	case string:
		candidates = []string{v}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	for _, c := range candidates {
		for _, role := range []models.Role{models.RoleAdmin, models.RoleWaiter, models.RoleKitchen} {
			if strings.EqualFold(c, string(role)) {
				return role, true
			}
		}
	}
	return "", false
}

// Chain tries each verifier in turn.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, raw string) (models.Actor, error) {
	if len(c) == 0 {
		return models.Actor{}, fmt.Errorf("%w: token verification is not configured", ErrInvalidToken)
	}
	var errs []error
	for _, v := range c {
		actor, err := v.Verify(ctx, raw)
		if err == nil {
			return actor, nil
		}
		errs = append(errs, err)
	}
	return models.Actor{}, errors.Join(errs...)
}
