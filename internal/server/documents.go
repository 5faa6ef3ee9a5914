package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sakchai-t/doclens/internal/pipeline"
	"github.com/sakchai-t/doclens/internal/store"
	"github.com/sakchai-t/doclens/models"
)

type DocumentsHandler struct {
	Store     *store.Store
	Processor *pipeline.Processor
}

func (h *DocumentsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.upload)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/reprocess", h.reprocess)
}

// upload accepts pre-extracted text and runs the ingestion pipeline
// synchronously before responding.
func (h *DocumentsHandler) upload(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req UploadDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.FileName) == "" || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_name and content required")
	}
	ctx := c.Request().Context()
	doc, err := h.Store.CreateDocument(ctx, models.Document{
		OwnerID:       userID,
		FileName:      req.FileName,
		FileExt:       req.FileExt,
		ExtractedText: req.Content,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// On a processing failure the row survives with status error for a
	// later reprocess, so the upload itself still reports created.
	processed, _ := h.Processor.Process(ctx, doc.ID)
	return c.JSON(http.StatusCreated, processed)
}

func (h *DocumentsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListDocuments(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *DocumentsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	doc, err := h.Store.GetOwnedDocument(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *DocumentsHandler) reprocess(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	if _, err := h.Store.GetOwnedDocument(c.Request().Context(), id, userID); err != nil {
		return err
	}
	doc, err := h.Processor.Process(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
