package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/platform/auth"
)

// Audit logs every state-changing admin API call with the acting staff member
// and the affected record id. Reads are not audited; they expose only
// pseudonyms and reference data.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") || !isWrite(req.Method) {
				return next(c)
			}

			err := next(c)

			rid, _ := c.Get("request_id").(string)
			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			logger.Info().
				Str("type", "admin_audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(req.Context())).
				Str("actor", auth.ActorFromContext(req.Context())).
				Str("action", methodToAction(req.Method)).
				Str("resource", resourceFromPath(req.URL.Path)).
				Str("target_id", c.Param("id")).
				Int("status", status).
				Msg("admin_action")

			return err
		}
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}

// resourceFromPath returns the first segment after /api/v1/.
func resourceFromPath(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/api/v1/"), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}
