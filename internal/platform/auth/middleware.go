package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// UserStatus reports whether the user behind a token may still act. Deleted
// users report false.
type UserStatus interface {
	IsActive(ctx context.Context, userID uuid.UUID) (bool, error)
}

// JWTMiddleware authenticates the bearer token, rejects revoked tokens and
// tokens of deactivated or deleted users, and stores the principal and
// claims on the request context. Nil revocations or users skip that check.
func JWTMiddleware(tokens *TokenService, revocations RevocationStore, users UserStatus) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := tokens.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			if revocations != nil {
				revoked, err := revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "token revocation check failed")
				}
				if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
				}
			}

			principal, err := claims.Principal()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if users != nil {
				active, err := users.IsActive(ctx, principal.UserID)
				if err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "account status check failed")
				}
				if !active {
					return echo.NewHTTPError(http.StatusUnauthorized, "account is inactive")
				}
			}

			ctx = WithPrincipal(ctx, principal)
			ctx = context.WithValue(ctx, TokenKey, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", principal.UserID.String())

			return next(c)
		}
	}
}
