package middleware

import (
	"context"
	"strings"

	"github.com/playshelf/playshelf-api/app/token"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type accessTokenVerifier interface {
	VerifyAccess(tokenString string) (*token.Claims, error)
}

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity returns ctx carrying the verified identity snapshot.
func WithIdentity(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, identityKey, claims)
}

// IdentityFrom returns the request identity, or nil for anonymous requests.
func IdentityFrom(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(identityKey).(*token.Claims)
	return claims
}

type Authenticator struct {
	verifier accessTokenVerifier
}

func NewAuthenticator(verifier accessTokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Authenticate resolves the bearer access token into a request identity.
// This is best-effort on purpose: a missing, malformed, expired or otherwise
// unverifiable token yields an anonymous request, never an error, so public
// operations keep working for clients holding a stale token. Operations that
// need an identity check IdentityFrom themselves.
func (a *Authenticator) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return next(c)
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			logrus.Debug("Ignoring malformed authorization header")
			return next(c)
		}

		claims, err := a.verifier.VerifyAccess(parts[1])
		if err != nil {
			logrus.WithError(err).Debug("Ignoring unverifiable access token")
			return next(c)
		}

		req := c.Request()
		c.SetRequest(req.WithContext(WithIdentity(req.Context(), claims)))
		return next(c)
	}
}
