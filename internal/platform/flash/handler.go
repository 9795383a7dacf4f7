package flash

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/fhir"
)

// PopHandler returns and clears the caller's queued messages.
func PopHandler(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		user := auth.ActorFromContext(ctx)
		if user == "" {
			return echo.NewHTTPError(http.StatusUnauthorized,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeSecurity, "authentication required"))
		}
		msgs, err := store.Pop(ctx, user)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fhir.InternalErrorOutcome("could not read messages"))
		}
		if msgs == nil {
			msgs = []Message{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"messages": msgs})
	}
}
