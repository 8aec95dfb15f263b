// Package indexer turns application content into stored documents and
// embeddings in the background, off the foreground query path.
package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hrygo/recall/ai/metrics"
	"github.com/hrygo/recall/store"
)

const (
	// maxBatchSize matches the embedding generator's per-call input cap.
	maxBatchSize = 20

	defaultWorkers = 4

	// batchInterval spaces out generator calls to respect provider
	// rate limits.
	batchInterval = 500 * time.Millisecond
)

// Embedder is the slice of the embedding service the indexer needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// Item is one piece of content to index. ID may be empty, in which
// case the indexer mints one.
type Item struct {
	ID         string
	SourceType string
	SourceID   string
	Text       string
	ChunkIndex int
	Metadata   map[string]string
}

// Indexer persists documents and their embeddings with a bounded
// worker pool. Failures are per-item: a bad item is logged and
// skipped, never aborting the rest of the batch.
type Indexer struct {
	store    *store.Store
	embedder Embedder
	logger   *slog.Logger
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
}

// New creates a new background indexer. workers bounds how many
// batches may be in flight at once; values below 1 get the default.
func New(st *store.Store, embedder Embedder, workers int, logger *slog.Logger) *Indexer {
	if workers < 1 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    st,
		embedder: embedder,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(workers)),
		limiter:  rate.NewLimiter(rate.Every(batchInterval), 1),
	}
}

// Index processes all items in batches. It returns early only on
// context cancellation; item and batch failures are logged, counted,
// and skipped. Indexing is not atomic across the item set.
func (ix *Indexer) Index(ctx context.Context, items []*Item) error {
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(items); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		// The limiter gates batch starts; the semaphore bounds how many
		// run at once.
		if err := ix.limiter.Wait(gctx); err != nil {
			break
		}
		if err := ix.sem.Acquire(gctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer ix.sem.Release(1)
			ix.indexBatch(gctx, batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// IndexConversation chunks conversation messages into items and
// indexes them under the conversation's id.
func (ix *Indexer) IndexConversation(ctx context.Context, conversationID string, messages []string) error {
	items := make([]*Item, 0, len(messages))
	for i, text := range messages {
		if text == "" {
			continue
		}
		items = append(items, &Item{
			SourceType: store.SourceTypeConversation,
			SourceID:   conversationID,
			Text:       text,
			ChunkIndex: i,
		})
	}
	return ix.Index(ctx, items)
}

func (ix *Indexer) indexBatch(ctx context.Context, batch []*Item) {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		ix.logger.WarnContext(ctx, "embedding batch failed, skipping",
			"batch_size", len(batch),
			"error", err,
		)
		for range batch {
			metrics.IndexTotal.WithLabelValues("error").Inc()
		}
		return
	}

	now := time.Now().Unix()
	for i, item := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := ix.indexItem(ctx, item, vectors[i], now); err != nil {
			ix.logger.WarnContext(ctx, "failed to index item, skipping",
				"source_type", item.SourceType,
				"source_id", item.SourceID,
				"chunk_index", item.ChunkIndex,
				"error", err,
			)
			metrics.IndexTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.IndexTotal.WithLabelValues("ok").Inc()
	}
}

func (ix *Indexer) indexItem(ctx context.Context, item *Item, vec []float32, now int64) error {
	id := item.ID
	if id == "" {
		id = shortuuid.New()
	}

	if _, err := ix.store.UpsertDocument(ctx, &store.Document{
		ID:         id,
		SourceType: item.SourceType,
		SourceID:   item.SourceID,
		ChunkText:  item.Text,
		ChunkIndex: item.ChunkIndex,
		Metadata:   item.Metadata,
		CreatedTs:  now,
	}); err != nil {
		return err
	}

	_, err := ix.store.UpsertEmbedding(ctx, &store.Embedding{
		DocumentID: id,
		Vector:     vec,
		Model:      ix.embedder.Model(),
		Dimension:  len(vec),
		CreatedTs:  now,
	})
	return err
}
