package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/ai/retrieval"
	"github.com/hrygo/recall/store"
)

type searchResultPayload struct {
	Document       *documentPayload `json:"document"`
	RelevanceScore float32          `json:"relevanceScore"`
}

// Search runs hybrid retrieval over the corpus. Falls back to pure
// keyword search when no embedding provider is configured.
func (s *APIV1Service) Search(c echo.Context) error {
	ctx := c.Request().Context()

	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	limit := 10
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	var sourceType *string
	if st := c.QueryParam("sourceType"); st != "" {
		sourceType = &st
	}

	if !s.aiEnabled() {
		return s.keywordSearch(c, query, limit, sourceType)
	}

	results, err := s.Retriever.HybridSearch(ctx, &retrieval.SearchOptions{
		Query:      query,
		Limit:      limit,
		SourceType: sourceType,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed").SetInternal(err)
	}

	payloads := make([]*searchResultPayload, 0, len(results))
	for _, r := range results {
		payloads = append(payloads, &searchResultPayload{
			Document:       convertDocumentFromStore(r.Document),
			RelevanceScore: r.RelevanceScore,
		})
	}
	return c.JSON(http.StatusOK, payloads)
}

func (s *APIV1Service) keywordSearch(c echo.Context, query string, limit int, sourceType *string) error {
	ctx := c.Request().Context()

	docs, err := s.Store.FullTextSearch(ctx, &store.FullTextSearchOptions{
		Query:      query,
		Limit:      limit,
		SourceType: sourceType,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed").SetInternal(err)
	}

	// Positional score only; without vectors there is nothing to blend.
	total := len(docs)
	payloads := make([]*searchResultPayload, 0, total)
	for i, doc := range docs {
		payloads = append(payloads, &searchResultPayload{
			Document:       convertDocumentFromStore(doc),
			RelevanceScore: float32(total-i) / float32(total),
		})
	}
	return c.JSON(http.StatusOK, payloads)
}
