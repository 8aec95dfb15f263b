package v1

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/ai/retrieval"
	"github.com/hrygo/recall/store"
)

// conversationStore derives conversation records from the indexed
// documents themselves: one conversation per distinct sourceId of
// source type "conversation". The title comes from the first chunk's
// metadata when present.
type conversationStore struct {
	store *store.Store
}

func newConversationStore(st *store.Store) *conversationStore {
	return &conversationStore{store: st}
}

func (cs *conversationStore) ListConversations(ctx context.Context, limit int) ([]*retrieval.Conversation, error) {
	sourceType := store.SourceTypeConversation
	docs, err := cs.store.ListDocuments(ctx, &store.FindDocument{SourceType: &sourceType})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*retrieval.Conversation)
	for _, doc := range docs {
		conv, ok := byID[doc.SourceID]
		if !ok {
			conv = &retrieval.Conversation{
				ID:        doc.SourceID,
				Title:     doc.SourceID,
				CreatedTs: doc.CreatedTs,
			}
			byID[doc.SourceID] = conv
		}
		if title, ok := doc.Metadata["title"]; ok && title != "" {
			conv.Title = title
		}
		if doc.CreatedTs < conv.CreatedTs {
			conv.CreatedTs = doc.CreatedTs
		}
	}

	conversations := make([]*retrieval.Conversation, 0, len(byID))
	for _, conv := range byID {
		conversations = append(conversations, conv)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedTs > conversations[j].CreatedTs
	})
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

type similarConversationPayload struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	CreatedTs int64   `json:"createdTs"`
	Score     float32 `json:"score"`
}

// SimilarConversations returns conversations related to the given one
// by embedding centroid similarity.
func (s *APIV1Service) SimilarConversations(c echo.Context) error {
	ctx := c.Request().Context()

	if !s.aiEnabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no embedding provider configured")
	}

	topK := 5
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		topK = parsed
	}

	results, err := s.Similarity.FindSimilar(ctx, c.Param("id"), topK)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "similarity search failed").SetInternal(err)
	}

	payloads := make([]*similarConversationPayload, 0, len(results))
	for _, r := range results {
		payloads = append(payloads, &similarConversationPayload{
			ID:        r.Conversation.ID,
			Title:     r.Conversation.Title,
			CreatedTs: r.Conversation.CreatedTs,
			Score:     r.Score,
		})
	}
	return c.JSON(http.StatusOK, payloads)
}
