package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/httputil"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

type contextKey string

const ActorContextKey contextKey = "actor"

// GetActor returns the lower-cased wallet address of the authenticated
// caller, or "" outside the auth middleware.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorContextKey).(string); ok {
		return actor
	}
	return ""
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// AuthMiddleware accepts HS256 bearer tokens whose subject is a wallet
// address.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing access token"))
			return
		}

		actor, err := m.verify(token)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("auth middleware: invalid token attempt")
			httputil.WriteError(w, apperrors.InvalidToken("Invalid access token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (m *AuthMiddleware) verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if !util.IsAddress(subject) {
		return "", errors.New("subject is not a wallet address")
	}
	return util.NormalizeAddress(subject), nil
}

// IssueToken signs a token for address. A non-positive ttl issues a token
// without expiry.
func IssueToken(secret, address string, ttl time.Duration) (string, error) {
	if !util.IsAddress(address) {
		return "", errors.New("address is not a wallet address")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  util.NormalizeAddress(address),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// extractToken prefers the query parameter because EventSource cannot set
// headers.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
