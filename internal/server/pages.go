package server

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/pages"
	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/suggest"
)

// PageService is implemented by pages.Service.
type PageService interface {
	Create(ctx context.Context, in pages.CreateInput) (store.PageRecord, error)
	Get(ctx context.Context, pageID string) (store.PageRecord, error)
	ListWorkspace(ctx context.Context, workspaceID string) ([]store.PageRecord, error)
	Update(ctx context.Context, in pages.UpdateInput) (pages.UpdateResult, error)
	Delete(ctx context.Context, pageID string) error
	History(ctx context.Context, pageID string) ([]store.VersionRecord, error)
	Restore(ctx context.Context, pageID, versionID, userID string) (pages.RestoreResult, error)
	AddTag(ctx context.Context, pageID, tag, userID string) (store.PageRecord, error)
	SuggestLinks(ctx context.Context, text, workspaceID string) ([]suggest.LinkSuggestion, error)
	FindSimilar(ctx context.Context, text, workspaceID string, limit int) ([]retrieval.Match, error)
}

type PagesHandler struct {
	svc    PageService
	logger *log.Logger
}

func (h *PagesHandler) Register(g *echo.Group) {
	g.POST("/workspaces/:workspace_id/pages", h.create)
	g.GET("/workspaces/:workspace_id/pages", h.list)
	g.POST("/workspaces/:workspace_id/link-suggestions", h.suggestLinks)
	g.POST("/workspaces/:workspace_id/similar", h.similar)

	g.GET("/pages/:page_id", h.get)
	g.PUT("/pages/:page_id", h.update)
	g.DELETE("/pages/:page_id", h.delete)
	g.POST("/pages/:page_id/tags", h.addTag)
	g.GET("/pages/:page_id/versions", h.history)
	g.POST("/pages/:page_id/versions/:version_id/restore", h.restore)
}

// Create page
//
//	@Summary	Create a page in a workspace
//	@Tags		pages
//	@Param		workspace_id	path		string				true	"Workspace ID"
//	@Param		payload			body		CreatePageRequest	true	"Page"
//	@Success	201				{object}	PageResponse
//	@Failure	400				{object}	HTTPError
//	@Router		/api/workspaces/{workspace_id}/pages [post]
func (h *PagesHandler) create(c echo.Context) error {
	var req CreatePageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	page, err := h.svc.Create(c.Request().Context(), pages.CreateInput{
		WorkspaceID: c.Param("workspace_id"),
		Title:       req.Title,
		Content:     req.Content,
		Tags:        req.Tags,
		UserID:      userID(c),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toPageResponse(page))
}

func (h *PagesHandler) list(c echo.Context) error {
	recs, err := h.svc.ListWorkspace(c.Request().Context(), c.Param("workspace_id"))
	if err != nil {
		return httpError(err)
	}
	out := make([]PageResponse, 0, len(recs))
	for _, p := range recs {
		out = append(out, toPageResponse(p))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PagesHandler) get(c echo.Context) error {
	page, err := h.svc.Get(c.Request().Context(), c.Param("page_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toPageResponse(page))
}

// Update page
//
//	@Summary		Partially update a page
//	@Description	Content changes record a version and return suggested tags
//	@Tags			pages
//	@Param			page_id	path		string				true	"Page ID"
//	@Param			payload	body		UpdatePageRequest	true	"Changes"
//	@Success		200		{object}	UpdatePageResponse
//	@Failure		404		{object}	HTTPError
//	@Router			/api/pages/{page_id} [put]
func (h *PagesHandler) update(c echo.Context) error {
	var req UpdatePageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Update(c.Request().Context(), pages.UpdateInput{
		PageID:  c.Param("page_id"),
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
		UserID:  userID(c),
	})
	if err != nil {
		return httpError(err)
	}
	tags := res.SuggestedTags
	if tags == nil {
		tags = []string{}
	}
	return c.JSON(http.StatusOK, UpdatePageResponse{Page: toPageResponse(res.Page), VersionID: res.VersionID, SuggestedTags: tags})
}

func (h *PagesHandler) delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("page_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PagesHandler) addTag(c echo.Context) error {
	var req AddTagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	page, err := h.svc.AddTag(c.Request().Context(), c.Param("page_id"), req.Tag, userID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toPageResponse(page))
}

func (h *PagesHandler) history(c echo.Context) error {
	recs, err := h.svc.History(c.Request().Context(), c.Param("page_id"))
	if err != nil {
		return httpError(err)
	}
	out := make([]VersionResponse, 0, len(recs))
	for _, v := range recs {
		out = append(out, toVersionResponse(v))
	}
	return c.JSON(http.StatusOK, out)
}

// Restore version
//
//	@Summary	Restore a page to an earlier version
//	@Tags		versions
//	@Param		page_id		path		string	true	"Page ID"
//	@Param		version_id	path		string	true	"Version ID"
//	@Success	200			{object}	RestoreResponse
//	@Failure	404			{object}	HTTPError
//	@Router		/api/pages/{page_id}/versions/{version_id}/restore [post]
func (h *PagesHandler) restore(c echo.Context) error {
	res, err := h.svc.Restore(c.Request().Context(), c.Param("page_id"), c.Param("version_id"), userID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, RestoreResponse{Page: toPageResponse(res.Page), Version: toVersionResponse(res.Version)})
}

// httpError maps primary-path failures onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, faults.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, faults.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
