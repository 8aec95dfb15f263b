package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/recall/ai/vector"
	"github.com/hrygo/recall/store"
)

// Conversation is the minimal conversation record the similarity
// engine needs to resolve matches back into something a caller can
// display.
type Conversation struct {
	ID        string
	Title     string
	CreatedTs int64
}

// ConversationService enumerates the conversations known to the host
// application. The engine only requires listing; it never mutates
// conversations.
type ConversationService interface {
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)
}

// SimilarConversation is a conversation scored against the target.
type SimilarConversation struct {
	Conversation *Conversation
	Score        float32
}

// SimilarityEngine finds conversations related to a given one by
// comparing centroids of their chunk embeddings. A centroid is the
// arithmetic mean of all vectors indexed for a conversation.
type SimilarityEngine struct {
	store         *store.Store
	conversations ConversationService
	logger        *slog.Logger
}

// NewSimilarityEngine creates a new conversation similarity engine.
func NewSimilarityEngine(st *store.Store, cs ConversationService, logger *slog.Logger) *SimilarityEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimilarityEngine{
		store:         st,
		conversations: cs,
		logger:        logger,
	}
}

// FindSimilar returns up to topK conversations ranked by centroid
// cosine similarity to the target conversation. Conversations without
// any indexed embeddings never appear; a target without embeddings
// yields an empty result rather than an error.
func (s *SimilarityEngine) FindSimilar(ctx context.Context, conversationID string, topK int) ([]*SimilarConversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id cannot be empty")
	}
	if topK <= 0 {
		topK = 5
	}

	sourceType := store.SourceTypeConversation
	rows, err := s.store.ListDocumentsWithVectors(ctx, &store.FindDocumentVector{
		SourceType: &sourceType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation vectors: %w", err)
	}

	grouped := make(map[string][][]float32)
	for _, row := range rows {
		grouped[row.Document.SourceID] = append(grouped[row.Document.SourceID], row.Vector)
	}

	targetVectors, ok := grouped[conversationID]
	if !ok {
		s.logger.DebugContext(ctx, "target conversation has no embeddings",
			"conversation_id", conversationID,
		)
		return []*SimilarConversation{}, nil
	}
	targetCentroid := vector.Centroid(targetVectors)
	if targetCentroid == nil {
		return []*SimilarConversation{}, nil
	}

	candidates := make([]vector.Candidate, 0, len(grouped))
	for sourceID, vectors := range grouped {
		if sourceID == conversationID {
			continue
		}
		centroid := vector.Centroid(vectors)
		if centroid == nil {
			continue
		}
		candidates = append(candidates, vector.Candidate{ID: sourceID, Vector: centroid})
	}

	scored := vector.TopK(targetCentroid, candidates, topK)
	if len(scored) == 0 {
		return []*SimilarConversation{}, nil
	}

	records, err := s.conversations.ListConversations(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	byID := make(map[string]*Conversation, len(records))
	for _, c := range records {
		byID[c.ID] = c
	}

	results := make([]*SimilarConversation, 0, len(scored))
	for _, sc := range scored {
		record, ok := byID[sc.ID]
		if !ok {
			// Embeddings can outlive the conversation record; skip
			// orphans instead of surfacing them.
			continue
		}
		results = append(results, &SimilarConversation{
			Conversation: record,
			Score:        sc.Score,
		})
	}

	s.logger.InfoContext(ctx, "conversation similarity completed",
		"conversation_id", conversationID,
		"candidate_count", len(candidates),
		"result_count", len(results),
	)
	return results, nil
}
