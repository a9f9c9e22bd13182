package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// quietPrefixes are health and scrape endpoints, logged only when they fail.
var quietPrefixes = []string{"/health", "/metrics"}

func isQuiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Logger writes one access line per request. Failures are logged at warn
// (4xx) or error (5xx) with the handler error attached.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			began := time.Now()
			err := next(c)

			req := c.Request()
			code := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}

			var evt *zerolog.Event
			switch {
			case code >= 500:
				evt = logger.Error().Err(err)
			case code >= 400 || err != nil:
				evt = logger.Warn().Err(err)
			case isQuiet(req.URL.Path):
				return nil
			default:
				evt = logger.Info()
			}

			if rid, ok := c.Get("request_id").(string); ok {
				evt = evt.Str("request_id", rid)
			}
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				evt = evt.Str("user_id", p.UserID.String()).Str("role", string(p.Role))
			}

			evt.Str("method", req.Method).
				Str("route", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", code).
				Int64("bytes_out", c.Response().Size).
				Float64("latency_ms", float64(time.Since(began).Microseconds())/1000).
				Str("ip", c.RealIP()).
				Msg("http")
			return err
		}
	}
}
