package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sakchai-t/doclens/internal/chat"
	"github.com/sakchai-t/doclens/internal/llm"
	"github.com/sakchai-t/doclens/models"
)

func TestMapError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"quota", llm.ErrQuotaExceeded, http.StatusTooManyRequests},
		{"token budget", llm.ErrTokenBudgetExceeded, http.StatusTooManyRequests},
		{"wrapped quota", fmt.Errorf("turn failed: %w", llm.ErrQuotaExceeded), http.StatusTooManyRequests},
		{"generation", &llm.GenerationError{Cause: errors.New("upstream 500")}, http.StatusBadGateway},
		{"document missing", models.ErrDocumentNotFound, http.StatusNotFound},
		{"notebook missing", models.ErrNotebookNotFound, http.StatusNotFound},
		{"conversation missing", models.ErrConversationNotFound, http.StatusNotFound},
		{"empty question", chat.ErrEmptyQuestion, http.StatusBadRequest},
		{"echo error", echo.NewHTTPError(http.StatusConflict, "dup"), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, msg := mapError(tt.err)
			if code != tt.code {
				t.Fatalf("code = %d, want %d", code, tt.code)
			}
			if msg == "" {
				t.Fatal("empty message")
			}
		})
	}
}

func TestWithAuth(t *testing.T) {
	t.Parallel()
	secret := []byte("test-secret")
	e := echo.New()
	next := func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("user_id").(string))
	}

	signed, err := signJWT("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	t.Run("bearer token accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := withAuth(next, secret)(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Body.String() != "user-1" {
			t.Fatalf("subject = %q", rec.Body.String())
		}
	})

	t.Run("cookie accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "auth", Value: signed})
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := withAuth(next, secret)(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		err := withAuth(next, secret)(c)
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		other, err := signJWT("user-1", []byte("other"), time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		c := e.NewContext(req, httptest.NewRecorder())
		authErr := withAuth(next, secret)(c)
		var he *echo.HTTPError
		if !errors.As(authErr, &he) || he.Code != http.StatusUnauthorized {
			t.Fatalf("err = %v", authErr)
		}
	})
}
