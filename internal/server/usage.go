package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sakchai-t/doclens/internal/ledger"
)

type UsageHandler struct {
	Tokens *ledger.TokenLedger
}

func (h *UsageHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.status)
}

func (h *UsageHandler) status(c echo.Context) error {
	userID := c.Get("user_id").(string)
	statuses, err := h.Tokens.Status(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statuses)
}
