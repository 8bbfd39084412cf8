package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"gapup-lab/internal/observability"
)

// Recover turns handler panics into 500 responses.
func Recover(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("path", c.Request().URL.Path).
						Str("panic", fmt.Sprint(r)).
						Msg("recovered from panic")
					err = InternalServerErrorResponse(c)
				}
			}()
			return next(c)
		}
	}
}

// RequestLogging logs one line per request and, when m is set, counts
// requests by method, route and status code. Errors are handed to echo's
// error handler first so the logged status is the one sent.
func RequestLogging(logger zerolog.Logger, m *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			event := logger.Debug()
			if status >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Msg("http request")

			if m != nil {
				m.RecordHTTPRequest(req.Method, route, status)
			}
			return nil
		}
	}
}
