package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		has  []string
		want []string
		ok   bool
	}{
		{[]string{RoleStaff}, []string{RoleStaff}, true},
		{[]string{RoleStaff}, []string{RoleAdmin}, false},
		{[]string{RoleAdmin}, []string{RoleStaff}, true},
		{nil, []string{RoleStaff}, false},
		{[]string{"viewer"}, []string{RoleAdmin, RoleStaff}, false},
	}
	for _, tt := range tests {
		if got := HasAnyRole(tt.has, tt.want...); got != tt.ok {
			t.Errorf("HasAnyRole(%v, %v) = %v, want %v", tt.has, tt.want, got, tt.ok)
		}
	}
}

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, []string{RoleStaff}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequireRole(RoleAdmin, RoleStaff)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, []string{RoleStaff}))
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireRole(RoleAdmin)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}
