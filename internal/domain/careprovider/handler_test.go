package careprovider

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hans/hans/internal/platform/fhir"
)

func newTestHandler() (*Handler, *echo.Echo, *mockLocationRepo) {
	svc, _, locs := newTestService()
	return NewHandler(svc), echo.New(), locs
}

func expectHTTPError(t *testing.T, err error, code int, issueCode string) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
	outcome, ok := he.Message.(*fhir.OperationOutcome)
	if !ok {
		t.Fatalf("expected OperationOutcome message, got %T", he.Message)
	}
	if outcome.Issue[0].Code != issueCode {
		t.Errorf("expected issue code %s, got %s", issueCode, outcome.Issue[0].Code)
	}
}

func TestHandler_CreateManager(t *testing.T) {
	h, e, _ := newTestHandler()

	body := `{"given_name":"Grace","family_name":"Hopper"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/registered-managers", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(actorCtx("alice"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateManager(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m RegisteredManager
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.CreatedBy != "alice" {
		t.Errorf("expected created_by alice, got %q", m.CreatedBy)
	}
}

func TestHandler_CreateManager_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registered-managers", strings.NewReader(`{"family_name":"Hopper"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	expectHTTPError(t, h.CreateManager(c), http.StatusBadRequest, fhir.IssueTypeInvalid)
}

func TestHandler_GetManager_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	expectHTTPError(t, h.GetManager(c), http.StatusNotFound, fhir.IssueTypeNotFound)
}

func TestHandler_GetLocation_InvalidID(t *testing.T) {
	h, e, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	expectHTTPError(t, h.GetLocation(c), http.StatusBadRequest, fhir.IssueTypeInvalid)
}

func TestHandler_ListLocations(t *testing.T) {
	h, e, _ := newTestHandler()
	m := createManager(t, h.svc)
	for _, name := range []string{"Rose House", "Oak Lodge"} {
		if err := h.svc.CreateLocation(actorCtx("alice"), &CareProviderLocation{RegisteredManagerID: m.ID, Name: name}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/care-provider-locations?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListLocations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []CareProviderLocation `json:"data"`
		Total   int                    `json:"total"`
		HasMore bool                   `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", resp.Total, len(resp.Data), resp.HasMore)
	}
}

func TestHandler_UpdateLocation(t *testing.T) {
	h, e, _ := newTestHandler()
	m := createManager(t, h.svc)
	loc := &CareProviderLocation{RegisteredManagerID: m.ID, Name: "Rose House"}
	if err := h.svc.CreateLocation(actorCtx("alice"), loc); err != nil {
		t.Fatalf("create: %v", err)
	}

	body := `{"registered_manager_id":"` + m.ID.String() + `","name":"Rose House East"}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(actorCtx("bob"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(loc.ID.String())

	if err := h.UpdateLocation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got CareProviderLocation
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Name != "Rose House East" || got.UpdatedBy != "bob" {
		t.Errorf("unexpected location %+v", got)
	}
}

func searchRequest(e *echo.Echo, form url.Values) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/care-provider/_search", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_SearchByPseudonym(t *testing.T) {
	h, e, locs := newTestHandler()
	m := createManager(t, h.svc)
	loc := &CareProviderLocation{RegisteredManagerID: m.ID, Name: "Rose House", ODSCode: strPtr("VM1AB")}
	if err := h.svc.CreateLocation(actorCtx("alice"), loc); err != nil {
		t.Fatalf("create: %v", err)
	}
	locs.recipients["deadbeef"] = loc.ID

	c, rec := searchRequest(e, url.Values{PseudonymSearchField: {"deadbeef"}})
	if err := h.SearchByPseudonym(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["resourceType"] != "Location" || body["name"] != "Rose House" {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["identifier"]; !ok {
		t.Error("expected ODS identifier in Location")
	}
}

func TestHandler_SearchByPseudonym_JSONBody(t *testing.T) {
	h, e, locs := newTestHandler()
	m := createManager(t, h.svc)
	loc := &CareProviderLocation{RegisteredManagerID: m.ID, Name: "Rose House"}
	if err := h.svc.CreateLocation(actorCtx("alice"), loc); err != nil {
		t.Fatalf("create: %v", err)
	}
	locs.recipients["deadbeef"] = loc.ID

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"_careRecipientPseudoId":"deadbeef"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.SearchByPseudonym(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_SearchByPseudonym_Missing(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := searchRequest(e, url.Values{})
	expectHTTPError(t, h.SearchByPseudonym(c), http.StatusBadRequest, fhir.IssueTypeRequired)
}

func TestHandler_SearchByPseudonym_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := searchRequest(e, url.Values{PseudonymSearchField: {"unknown"}})
	expectHTTPError(t, h.SearchByPseudonym(c), http.StatusNotFound, fhir.IssueTypeNotFound)
}

func TestHandler_SearchMethodNotAllowed(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/care-provider/_search", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	expectHTTPError(t, h.SearchMethodNotAllowed(c), http.StatusMethodNotAllowed, fhir.IssueTypeNotAllowed)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e, _ := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/registered-managers":        false,
		"PUT /api/v1/care-provider-locations/:id": false,
		"POST /api/v1/care-provider/_search":      false,
		"GET /api/v1/care-provider/_search":       false,
		"GET /api/v1/care-provider-locations/:id": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
