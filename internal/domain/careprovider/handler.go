package careprovider

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/fhir"
	"github.com/hans/hans/pkg/pagination"
)

// PseudonymSearchField names the form or JSON field carrying the pseudonym.
const PseudonymSearchField = "_careRecipientPseudoId"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	readGroup.GET("/registered-managers", h.ListManagers)
	readGroup.GET("/registered-managers/:id", h.GetManager)
	readGroup.GET("/care-provider-locations", h.ListLocations)
	readGroup.GET("/care-provider-locations/:id", h.GetLocation)
	readGroup.POST("/care-provider/_search", h.SearchByPseudonym)
	readGroup.GET("/care-provider/_search", h.SearchMethodNotAllowed)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/registered-managers", h.CreateManager)
	writeGroup.PUT("/registered-managers/:id", h.UpdateManager)
	writeGroup.POST("/care-provider-locations", h.CreateLocation)
	writeGroup.PUT("/care-provider-locations/:id", h.UpdateLocation)
}

// -- RegisteredManager Handlers --

func (h *Handler) CreateManager(c echo.Context) error {
	var m RegisteredManager
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	if err := h.svc.CreateManager(c.Request().Context(), &m); err != nil {
		return httpError(err, "RegisteredManager", "")
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetManager(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetManager(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "RegisteredManager", id.String())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListManagers(c echo.Context) error {
	p := pagination.FromContext(c)
	managers, total, err := h.svc.ListManagers(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return httpError(err, "RegisteredManager", "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(managers, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateManager(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var m RegisteredManager
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	m.ID = id
	if err := h.svc.UpdateManager(c.Request().Context(), &m); err != nil {
		return httpError(err, "RegisteredManager", id.String())
	}
	return c.JSON(http.StatusOK, m)
}

// -- CareProviderLocation Handlers --

func (h *Handler) CreateLocation(c echo.Context) error {
	var loc CareProviderLocation
	if err := c.Bind(&loc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	if err := h.svc.CreateLocation(c.Request().Context(), &loc); err != nil {
		return httpError(err, "Location", "")
	}
	return c.JSON(http.StatusCreated, loc)
}

func (h *Handler) GetLocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	loc, err := h.svc.GetLocation(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "Location", id.String())
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) ListLocations(c echo.Context) error {
	p := pagination.FromContext(c)
	locs, total, err := h.svc.ListLocations(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return httpError(err, "Location", "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(locs, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var loc CareProviderLocation
	if err := c.Bind(&loc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	loc.ID = id
	if err := h.svc.UpdateLocation(c.Request().Context(), &loc); err != nil {
		return httpError(err, "Location", id.String())
	}
	return c.JSON(http.StatusOK, loc)
}

// -- Pseudonym search --

// SearchByPseudonym answers which location cares for the recipient with the
// given pseudonym, returning it as a FHIR Location.
func (h *Handler) SearchByPseudonym(c echo.Context) error {
	pseudonym := pseudonymParam(c)
	if pseudonym == "" {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.RequiredFieldOutcome(PseudonymSearchField))
	}
	loc, err := h.svc.FindLocationByRecipientPseudonym(c.Request().Context(), pseudonym)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotFound, "no care recipient matches the given pseudonym"))
		}
		return httpError(err, "Location", "")
	}
	return c.JSON(http.StatusOK, loc.ToFHIR())
}

func (h *Handler) SearchMethodNotAllowed(c echo.Context) error {
	return echo.NewHTTPError(http.StatusMethodNotAllowed, fhir.MethodNotAllowedOutcome(c.Request().Method))
}

func pseudonymParam(c echo.Context) string {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		var body map[string]string
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return ""
		}
		return strings.TrimSpace(body[PseudonymSearchField])
	}
	return strings.TrimSpace(c.FormValue(PseudonymSearchField))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome("id", "invalid id"))
	}
	return id, nil
}

func httpError(err error, resourceType, id string) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome(ve.Field, ve.Message))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome(resourceType, id))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	}
}
