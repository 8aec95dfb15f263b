package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	aicontext "github.com/hrygo/recall/ai/context"
)

type buildContextRequest struct {
	Query         string   `json:"query"`
	Scope         string   `json:"scope,omitempty"`
	TopK          int      `json:"topK,omitempty"`
	SourceID      string   `json:"sourceId,omitempty"`
	Language      string   `json:"language,omitempty"`
	Mode          string   `json:"mode,omitempty"` // "", "conversation", "code", "multi-turn"
	RecentQueries []string `json:"recentQueries,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty"`
}

type buildContextResponse struct {
	Context string `json:"context"`
}

// BuildContext assembles a token-budgeted context string for the
// caller's next LLM request. An empty context is a valid answer, not
// an error.
func (s *APIV1Service) BuildContext(c echo.Context) error {
	ctx := c.Request().Context()

	if !s.aiEnabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no embedding provider configured")
	}

	var req buildContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}

	// Shared assembler state must not change per request; a custom
	// budget gets its own instance.
	assembler := s.Assembler
	if req.MaxTokens > 0 {
		assembler = aicontext.NewAssembler(s.Retriever, slog.Default())
		assembler.SetMaxTokens(req.MaxTokens)
	}

	var assembled string
	switch req.Mode {
	case "", "default":
		if req.Query == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "query is required")
		}
		assembled = assembler.BuildContext(ctx, req.Query, req.Scope, req.TopK)
	case "conversation":
		if req.Query == "" || req.SourceID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "query and sourceId are required")
		}
		assembled = assembler.BuildConversationContext(ctx, req.SourceID, req.Query)
	case "code":
		if req.Query == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "query is required")
		}
		assembled = assembler.BuildCodeContext(ctx, req.Query, req.Language)
	case "multi-turn":
		if len(req.RecentQueries) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "recentQueries is required")
		}
		assembled = assembler.BuildMultiTurnContext(ctx, req.RecentQueries, req.Scope)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown mode: "+req.Mode)
	}

	return c.JSON(http.StatusOK, &buildContextResponse{Context: assembled})
}
