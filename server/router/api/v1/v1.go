// Package v1 implements the REST API surface.
package v1

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/recall/ai"
	aicontext "github.com/hrygo/recall/ai/context"
	"github.com/hrygo/recall/ai/indexer"
	"github.com/hrygo/recall/ai/retrieval"
	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store"
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store

	// AI components are nil when no embedding provider is configured;
	// the semantic endpoints then answer 503 while document CRUD and
	// keyword search keep working.
	EmbeddingService ai.EmbeddingService
	Retriever        *retrieval.Engine
	Assembler        *aicontext.Assembler
	Similarity       *retrieval.SimilarityEngine
	Indexer          *indexer.Indexer
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store) *APIV1Service {
	service := &APIV1Service{
		Profile: profile,
		Store:   store,
	}

	if profile.IsAIEnabled() {
		aiConfig := ai.NewConfigFromProfile(profile)
		if err := aiConfig.Validate(); err != nil {
			slog.Warn("AI config validation failed, semantic retrieval disabled", "error", err)
			return service
		}
		embeddingService, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			slog.Warn("failed to initialize embedding service, semantic retrieval disabled", "error", err)
			return service
		}

		service.EmbeddingService = embeddingService
		service.Retriever = retrieval.NewEngine(store, embeddingService)
		service.Assembler = aicontext.NewAssembler(service.Retriever, slog.Default())
		service.Similarity = retrieval.NewSimilarityEngine(store, newConversationStore(store), slog.Default())
		service.Indexer = indexer.New(store, embeddingService, 0, slog.Default())

		slog.Info("AI retrieval initialized",
			"provider", aiConfig.Embedding.Provider,
			"model", aiConfig.Embedding.Model,
			"dimensions", aiConfig.Embedding.Dimensions,
		)
	} else {
		slog.Info("AI retrieval disabled, no embedding provider configured")
	}

	return service
}

// RegisterRoutes registers all REST routes with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(_ context.Context, echoServer *echo.Echo) error {
	g := echoServer.Group("/api/v1")

	g.POST("/documents", s.CreateDocument)
	g.GET("/documents", s.ListDocuments)
	g.GET("/documents/:id", s.GetDocument)
	g.DELETE("/documents/:id", s.DeleteDocument)

	g.GET("/search", s.Search)
	g.POST("/context", s.BuildContext)
	g.GET("/conversations/:id/similar", s.SimilarConversations)

	echoServer.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return nil
}

func (s *APIV1Service) aiEnabled() bool {
	return s.Retriever != nil
}
