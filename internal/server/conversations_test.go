package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sakchai-t/doclens/internal/chat"
)

func TestChatStreamRejectsBlankMessage(t *testing.T) {
	t.Parallel()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	c.Set("user_id", "u1")

	h := &ConversationsHandler{}
	err := h.chatStream(c)
	if !errors.Is(err, chat.ErrEmptyQuestion) {
		t.Fatalf("err = %v", err)
	}
	if code, _ := mapError(err); code != http.StatusBadRequest {
		t.Fatalf("mapped status = %d, want 400", code)
	}
	// The response must not have been switched to a stream.
	if ct := rec.Header().Get(echo.HeaderContentType); strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q before validation", ct)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body written before validation: %q", rec.Body.String())
	}
}
