package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/recall/store"
)

type documentPayload struct {
	ID         string            `json:"id"`
	SourceType string            `json:"sourceType"`
	SourceID   string            `json:"sourceId"`
	ChunkText  string            `json:"chunkText"`
	ChunkIndex int               `json:"chunkIndex"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedTs  int64             `json:"createdTs"`
}

func convertDocumentFromStore(doc *store.Document) *documentPayload {
	return &documentPayload{
		ID:         doc.ID,
		SourceType: doc.SourceType,
		SourceID:   doc.SourceID,
		ChunkText:  doc.ChunkText,
		ChunkIndex: doc.ChunkIndex,
		Metadata:   doc.Metadata,
		CreatedTs:  doc.CreatedTs,
	}
}

// CreateDocument stores a document chunk and, when an embedding
// provider is configured, generates and stores its vector in the same
// request. Embedding failure does not fail the request: the document
// is still persisted and remains reachable by keyword search.
func (s *APIV1Service) CreateDocument(c echo.Context) error {
	ctx := c.Request().Context()

	var payload documentPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed document payload").SetInternal(err)
	}
	if payload.ID == "" {
		payload.ID = shortuuid.New()
	}

	doc, err := s.Store.UpsertDocument(ctx, &store.Document{
		ID:         payload.ID,
		SourceType: payload.SourceType,
		SourceID:   payload.SourceID,
		ChunkText:  payload.ChunkText,
		ChunkIndex: payload.ChunkIndex,
		Metadata:   payload.Metadata,
		CreatedTs:  time.Now().Unix(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if s.aiEnabled() {
		if vec, embedErr := s.EmbeddingService.Embed(ctx, doc.ChunkText); embedErr != nil {
			c.Logger().Warnf("failed to embed document %s: %v", doc.ID, embedErr)
		} else if _, upsertErr := s.Store.UpsertEmbedding(ctx, &store.Embedding{
			DocumentID: doc.ID,
			Vector:     vec,
			Model:      s.EmbeddingService.Model(),
			Dimension:  len(vec),
			CreatedTs:  time.Now().Unix(),
		}); upsertErr != nil {
			c.Logger().Warnf("failed to store embedding for document %s: %v", doc.ID, upsertErr)
		}
	}

	return c.JSON(http.StatusOK, convertDocumentFromStore(doc))
}

func (s *APIV1Service) GetDocument(c echo.Context) error {
	ctx := c.Request().Context()

	doc, err := s.Store.GetDocument(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get document").SetInternal(err)
	}
	if doc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, convertDocumentFromStore(doc))
}

func (s *APIV1Service) ListDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	find := &store.FindDocument{}
	if sourceType := c.QueryParam("sourceType"); sourceType != "" {
		find.SourceType = &sourceType
	}
	if sourceID := c.QueryParam("sourceId"); sourceID != "" {
		find.SourceID = &sourceID
	}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		find.Limit = &limit
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		find.Offset = &offset
	}

	docs, err := s.Store.ListDocuments(ctx, find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents").SetInternal(err)
	}

	payloads := make([]*documentPayload, 0, len(docs))
	for _, doc := range docs {
		payloads = append(payloads, convertDocumentFromStore(doc))
	}
	return c.JSON(http.StatusOK, payloads)
}

// DeleteDocument removes a document together with its full-text index
// entry and embeddings. Deleting an absent id is a no-op success.
func (s *APIV1Service) DeleteDocument(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.Store.DeleteDocument(ctx, c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete document").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
