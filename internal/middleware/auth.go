package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/z-lingo/backend/internal/config"
	"github.com/zhouzirui/z-lingo/backend/pkg/utils"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

type contextKey int

const identityKey contextKey = iota

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the caller identity from the request context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// Authenticator resolves bearer tokens to identities.
type Authenticator struct {
	tokens map[string]config.Identity
}

// NewAuthenticator creates an Authenticator from the configured token table.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	tokens := make(map[string]config.Identity, len(cfg.Tokens))
	for token, id := range cfg.Tokens {
		tokens[token] = id
	}
	return &Authenticator{tokens: tokens}
}

// Resolve returns the identity for the request's bearer token. WebSocket
// upgrades may pass the token as the access_token query parameter instead.
func (a *Authenticator) Resolve(r *http.Request) (Identity, bool) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		return Identity{}, false
	}

	id, ok := a.tokens[token]
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: id.UserID, Role: id.Role}, true
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := a.Resolve(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// FeatureGate checks whether AI chat is enabled for a caller.
type FeatureGate struct {
	cfg config.ChatConfig
}

// NewFeatureGate creates a gate from the chat configuration.
func NewFeatureGate(cfg config.ChatConfig) *FeatureGate {
	return &FeatureGate{cfg: cfg}
}

// Allow reports whether id may use AI chat.
func (g *FeatureGate) Allow(id Identity) bool {
	return g.cfg.Enabled && g.cfg.RoleAllowed(id.Role)
}

// Middleware rejects callers without AI chat access with 403. It must run after
// the Authenticator.
func (g *FeatureGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !g.Allow(id) {
			utils.RespondError(w, http.StatusForbidden, "ai chat is not enabled for this account")
			return
		}
		next.ServeHTTP(w, r)
	})
}
