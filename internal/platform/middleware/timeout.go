package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hans/hans/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. Bulk imports call
// the subscription service once per row, so the limit must cover the whole
// batch; the per-call limit lives in the gateway client.
//
// Handlers run on the request goroutine. When the deadline passes, the
// in-flight gateway or database call returns a context error and the handler
// unwinds; a 504 is written if nothing was sent yet.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout,
					fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout,
						"Request processing exceeded the allowed time limit"))
			}
			return err
		}
	}
}
