package flash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hans/hans/internal/platform/auth"
)

func TestPopHandler(t *testing.T) {
	store := NewMemoryStore(DefaultLimit)
	ctx := auth.WithUser(context.Background(), "u1", "alice", nil)
	if err := store.Push(ctx, "alice", New(LevelInfo, "imported"), New(LevelWarning, "REF-1 (row 1): already exists")); err != nil {
		t.Fatalf("push: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	if err := PopHandler(store)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[1].Level != LevelWarning {
		t.Errorf("unexpected messages %+v", body.Messages)
	}

	rec = httptest.NewRecorder()
	if err := PopHandler(store)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 0 {
		t.Errorf("expected queue to be drained, got %d messages", len(body.Messages))
	}
}

func TestPopHandler_Anonymous(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	err := PopHandler(NewMemoryStore(DefaultLimit))(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
