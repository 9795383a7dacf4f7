package carerecipient

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/fhir"
	"github.com/hans/hans/internal/platform/flash"
	"github.com/hans/hans/internal/platform/managementapi"
	"github.com/hans/hans/pkg/pagination"
)

const (
	// ImportFileField is the multipart field carrying the roster file.
	ImportFileField = "csvfile"

	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	templateFilename  = "care-recipients-import.xlsx"
	maxBulkDeleteSize = 1000
)

type Handler struct {
	svc      *Service
	messages flash.Store
}

func NewHandler(svc *Service, messages flash.Store) *Handler {
	return &Handler{svc: svc, messages: messages}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	readGroup.GET("/care-recipients", h.List)
	readGroup.GET("/care-recipients/:id", h.Get)
	readGroup.GET("/care-provider-locations/:id/import-template", h.ImportTemplate)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/care-recipients", h.Create)
	writeGroup.DELETE("/care-recipients/:id", h.Delete)
	writeGroup.POST("/care-recipients/_delete", h.BulkDelete)
	writeGroup.POST("/care-provider-locations/:id/import", h.Import)
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	r, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return httpError(err, "")
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err, id.String())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	filter := ListFilter{Query: c.QueryParam("q")}
	if raw := c.QueryParam("location"); raw != "" {
		loc, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome("location", "invalid id"))
		}
		filter.LocationID = &loc
	}

	recs, total, err := h.svc.List(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return httpError(err, "")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

// -- Deletion --

type deletionResponse struct {
	Summary  string            `json:"summary"`
	Total    int               `json:"total"`
	Deleted  int               `json:"deleted"`
	Outcomes []DeletionOutcome `json:"outcomes"`
	Messages []string          `json:"messages"`
}

func newDeletionResponse(report *DeletionReport) deletionResponse {
	return deletionResponse{
		Summary:  report.Summary(),
		Total:    report.Total(),
		Deleted:  report.Deleted(),
		Outcomes: report.Outcomes,
		Messages: report.Lines(),
	}
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	report := h.svc.Delete(c.Request().Context(), []uuid.UUID{id})
	o := report.Outcomes[0]
	if o.Deleted {
		return c.NoContent(http.StatusNoContent)
	}
	switch {
	case errors.Is(o.Err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome("CareRecipient", id.String()))
	case managementapi.IsError(o.Err):
		return echo.NewHTTPError(http.StatusBadGateway,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeException, o.Message))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, fhir.InternalErrorOutcome(o.Message))
	}
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) BulkDelete(c echo.Context) error {
	var req bulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, fhir.RequiredFieldOutcome("ids"))
	}
	if len(req.IDs) > maxBulkDeleteSize {
		return echo.NewHTTPError(http.StatusBadRequest,
			fhir.ValidationOutcome("ids", fmt.Sprintf("at most %d ids per request", maxBulkDeleteSize)))
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	seen := make(map[uuid.UUID]bool, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome("ids", fmt.Sprintf("invalid id %q", raw)))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	ctx := c.Request().Context()
	report := h.svc.Delete(ctx, ids)
	h.pushMessages(c, report.Messages()...)
	return c.JSON(http.StatusOK, newDeletionResponse(report))
}

// -- Import --

type importResponse struct {
	Rows     int        `json:"rows"`
	Created  int        `json:"created"`
	Errors   []RowError `json:"errors"`
	Messages []string   `json:"messages"`
}

func (h *Handler) Import(c echo.Context) error {
	locationID, err := parseID(c)
	if err != nil {
		return err
	}

	var (
		file     io.Reader
		filename string
	)
	if fh, err := c.FormFile(ImportFileField); err == nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fhir.ErrorOutcome(MsgInvalidOrEmptyFile))
		}
		defer closeQuietly(f)
		file, filename = f, fh.Filename
	}

	result, err := h.svc.Import(c.Request().Context(), locationID, filename, file)
	if err != nil {
		var ie *ImportError
		if errors.As(err, &ie) {
			h.pushMessages(c, flash.New(flash.LevelError, ie.Message))
		}
		if result != nil {
			h.pushMessages(c, result.Messages()...)
		}
		return httpError(err, locationID.String())
	}

	h.pushMessages(c, result.Messages()...)
	errs := result.Errors
	if errs == nil {
		errs = []RowError{}
	}
	return c.JSON(http.StatusOK, importResponse{
		Rows:     result.Rows,
		Created:  result.Created,
		Errors:   errs,
		Messages: result.Lines(),
	})
}

func (h *Handler) ImportTemplate(c echo.Context) error {
	locationID, err := parseID(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.Location(c.Request().Context(), locationID); err != nil {
		return httpError(err, locationID.String())
	}
	buf, err := ImportTemplate()
	if err != nil {
		return httpError(err, "")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", templateFilename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// pushMessages queues console messages for the acting user. A store failure
// is logged and does not affect the response.
func (h *Handler) pushMessages(c echo.Context, msgs ...flash.Message) {
	if h.messages == nil || len(msgs) == 0 {
		return
	}
	ctx := c.Request().Context()
	user := auth.ActorFromContext(ctx)
	if user == "" {
		return
	}
	if err := h.messages.Push(ctx, user, msgs...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to queue console messages")
	}
}

func closeQuietly(f multipart.File) {
	_ = f.Close()
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fhir.ValidationOutcome("id", "invalid id"))
	}
	return id, nil
}

func httpError(err error, id string) error {
	var (
		ve  *ValidationError
		dup *DuplicateIdentifierError
		ie  *ImportError
	)
	switch {
	case errors.As(err, &ie):
		if ie.Kind == ImportUnknownLocation {
			return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome("Location", id))
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeStructure, ie.Message))
	case errors.As(err, &ve):
		if managementapi.IsError(ve.Err) {
			return echo.NewHTTPError(http.StatusBadGateway,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeException, ve.Error()))
		}
		return echo.NewHTTPError(http.StatusBadRequest, validationOutcome(ve))
	case errors.As(err, &dup):
		return echo.NewHTTPError(http.StatusConflict, fhir.ConflictOutcome(dup.Error()))
	case errors.Is(err, ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, fhir.ConflictOutcome(err.Error()))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome("CareRecipient", id))
	case errors.Is(err, careprovider.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, fhir.NotFoundOutcome("Location", id))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	}
}

func validationOutcome(ve *ValidationError) *fhir.OperationOutcome {
	b := fhir.NewOutcomeBuilder()
	for _, f := range ve.Fields {
		if f.Field == "" {
			b.AddIssue(fhir.IssueSeverityError, fhir.IssueTypeInvalid, f.Message)
			continue
		}
		b.AddIssueWithLocation(fhir.IssueSeverityError, fhir.IssueTypeInvalid, f.Field+": "+f.Message, f.Field)
	}
	return b.Build()
}
