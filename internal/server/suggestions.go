package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/metrics"
	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
	"github.com/mohammad-safakhou/pagemind/internal/richtext"
	"github.com/mohammad-safakhou/pagemind/internal/suggest"
)

func (req SuggestRequest) text() string {
	if req.Text != "" || len(req.Content) == 0 {
		return req.Text
	}
	return richtext.ExtractJSON(req.Content)
}

// Link suggestions
//
//	@Summary		Suggest links from text to similar pages of the workspace
//	@Description	Pipeline failures return an empty list with degraded=true
//	@Tags			suggestions
//	@Param			workspace_id	path		string			true	"Workspace ID"
//	@Param			payload			body		SuggestRequest	true	"Text"
//	@Success		200				{object}	SuggestResponse
//	@Router			/api/workspaces/{workspace_id}/link-suggestions [post]
func (h *PagesHandler) suggestLinks(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	got, err := h.svc.SuggestLinks(c.Request().Context(), req.text(), c.Param("workspace_id"))
	if err != nil {
		if errors.Is(err, faults.ErrValidation) {
			return httpError(err)
		}
		h.logger.Printf("warn: link suggestions degraded for workspace %s: %v", c.Param("workspace_id"), err)
		metrics.Suggestions.WithLabelValues("links", "degraded").Inc()
		return c.JSON(http.StatusOK, SuggestResponse{Suggestions: []suggest.LinkSuggestion{}, Degraded: true})
	}
	out := make([]suggest.LinkSuggestion, 0, len(got))
	for _, s := range got {
		if s.Usable() {
			out = append(out, s)
		}
	}
	metrics.Suggestions.WithLabelValues("links", outcome(len(out))).Inc()
	return c.JSON(http.StatusOK, SuggestResponse{Suggestions: out})
}

func (h *PagesHandler) similar(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	got, err := h.svc.FindSimilar(c.Request().Context(), req.text(), c.Param("workspace_id"), req.Limit)
	if err != nil {
		if errors.Is(err, faults.ErrValidation) {
			return httpError(err)
		}
		h.logger.Printf("warn: similarity search degraded for workspace %s: %v", c.Param("workspace_id"), err)
		metrics.Suggestions.WithLabelValues("similar", "degraded").Inc()
		return c.JSON(http.StatusOK, SimilarResponse{Matches: []retrieval.Match{}, Degraded: true})
	}
	if got == nil {
		got = []retrieval.Match{}
	}
	metrics.Suggestions.WithLabelValues("similar", outcome(len(got))).Inc()
	return c.JSON(http.StatusOK, SimilarResponse{Matches: got})
}

func outcome(n int) string {
	if n == 0 {
		return "empty"
	}
	return "ok"
}
