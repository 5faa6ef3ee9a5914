package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sakchai-t/doclens/internal/analysis"
	"github.com/sakchai-t/doclens/internal/store"
	"github.com/sakchai-t/doclens/models"
)

type NotebooksHandler struct {
	Store    *store.Store
	Analyzer *analysis.Service
}

func (h *NotebooksHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/documents", h.documents)
}

// create groups owned documents into a notebook and enriches it with a
// generated title and combined summary. Enrichment degrades to defaults,
// so creation never fails on LLM errors.
func (h *NotebooksHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req CreateNotebookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.DocumentIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "document_ids required")
	}
	ctx := c.Request().Context()
	docs := make([]models.Document, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		doc, err := h.Store.GetOwnedDocument(ctx, id, userID)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	nb, err := h.Store.CreateNotebook(ctx, models.Notebook{
		OwnerID:     userID,
		Title:       req.Title,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	title, combined := h.Analyzer.CombinedTitleAndSummary(ctx, userID, docs)
	if req.Title != "" {
		title = req.Title
	}
	if err := h.Store.UpdateNotebookSummary(ctx, nb.ID, title, combined); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	nb.Title = title
	nb.CombinedSummary = combined
	return c.JSON(http.StatusCreated, nb)
}

func (h *NotebooksHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListNotebooks(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *NotebooksHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notebook id")
	}
	nb, err := h.Store.GetOwnedNotebook(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nb)
}

func (h *NotebooksHandler) documents(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notebook id")
	}
	ctx := c.Request().Context()
	if _, err := h.Store.GetOwnedNotebook(ctx, id, userID); err != nil {
		return err
	}
	docs, err := h.Store.ListNotebookDocuments(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, docs)
}
