package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/policy"
	"connect-kitchen/internal/utils"

	"github.com/google/uuid"
)

type contextKey string

const actorKey contextKey = "actor"

// Authenticator resolves the actor behind a request. A request without a
// credential is a guest; a request with a bad one is rejected.
type Authenticator struct {
	verifier Verifier
	log      *logger.Logger
}

func NewAuthenticator(verifier Verifier, log *logger.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, log: log}
}

func (a *Authenticator) ResolveActor(r *http.Request) (models.Actor, error) {
	token, err := ExtractTokenFromRequest(r)
	if errors.Is(err, ErrNoCredential) {
		return models.GuestActor(uuid.NewString(), r.URL.Query().Get("tabId")), nil
	}
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if a.verifier == nil {
		return models.Actor{}, fmt.Errorf("%w: token verification is not configured", ErrInvalidToken)
	}
	return a.verifier.Verify(r.Context(), token)
}

// Middleware stores the resolved actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.ResolveActor(r)
		if err != nil {
			a.log.LogSecurity("AUTH_FAILED", fmt.Sprintf("%s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err))
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authentication failed", "unauthorized", "invalid token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireAction lets the request through only when its actor's role may
// perform action. Guests get 401 so the client knows to sign in.
func (a *Authenticator) RequireAction(action policy.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if ok && policy.Allow(actor.Role, action) {
				next.ServeHTTP(w, r)
				return
			}
			if !ok || actor.Role == models.RoleGuest {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authentication required", "unauthorized", "missing credential"))
				return
			}
			a.log.LogSecurity("ACCESS_DENIED", fmt.Sprintf("%s %s may not %s", actor.Role, actor.ID, action))
			utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Access denied", "forbidden", "not authorized for this action"))
		})
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor stored by Middleware.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}
