package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/storage"
)

// DefaultK is the number of results returned when the caller does not choose.
const DefaultK = 5

// Index stores chunk vectors and answers nearest-neighbor queries.
// Only chunks of ready documents are searchable.
type Index interface {
	// Index persists the chunks of a processing document. The chunks become
	// searchable when the document is marked ready.
	Index(ctx context.Context, documentID core.ID, chunks []*core.DocumentChunk) ([]*core.DocumentChunk, error)

	// Search returns at most k results by descending cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]*core.SearchResult, error)
}

// Linear is an Index that scans every eligible chunk on each query.
type Linear struct {
	repository storage.DocumentRepository
	monitor    Monitor
	logger     *slog.Logger
}

var _ Index = (*Linear)(nil)

// Option configures a Linear index.
type Option func(*Linear) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linear) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// WithMonitor installs hooks observing every search.
func WithMonitor(monitor Monitor) Option {
	return func(l *Linear) error {
		if monitor == nil {
			monitor = noopMonitor{}
		}
		l.monitor = monitor
		return nil
	}
}

// NewLinear creates a linear scan index over the document repository.
func NewLinear(repository storage.DocumentRepository, opts ...Option) (*Linear, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}

	l := &Linear{
		repository: repository,
		monitor:    noopMonitor{},
		logger:     slog.Default().With("component", "search"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Index implements Index.
func (l *Linear) Index(ctx context.Context, documentID core.ID, chunks []*core.DocumentChunk) ([]*core.DocumentChunk, error) {
	return l.repository.AddChunks(ctx, documentID, chunks...)
}

// Search implements Index.
// Ties keep scan order, which is by document ID then chunk index.
// Unreadable chunks are logged and skipped.
func (l *Linear) Search(ctx context.Context, query []float32, k int) ([]*core.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", core.ErrValidation, k)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyVector)
	}

	l.monitor.Start(k)

	var results []*core.SearchResult
	scanned := 0
	err := l.repository.ScanReadyChunks(ctx, func(doc *core.Document, chunk *core.DocumentChunk, err error) error {
		if err != nil {
			var corrupt *core.CorruptChunkError
			if errors.As(err, &corrupt) {
				l.logger.Warn("skipping unreadable chunk",
					"documentID", corrupt.DocumentId,
					"chunkIndex", corrupt.ChunkIndex,
					"err", corrupt.Err)
				l.monitor.SkippedChunk(corrupt)
				return nil
			}
			return err
		}

		scanned++
		results = append(results, &core.SearchResult{
			Document: doc,
			Chunk:    chunk,
			Score:    Cosine(query, chunk.Vector),
		})
		return nil
	})
	if err != nil {
		l.logger.Error("error scanning chunks", "err", err)
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	// Limit to k
	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []*core.SearchResult{}
	}

	l.monitor.Finish(scanned, results)
	return results, nil
}

// Cosine returns dot(a,b) / (|a|*|b|).
// It is 0 when the lengths differ or either vector has zero magnitude.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	// sqrt of the product keeps Cosine(a, a) exactly 1
	return float32(dot / math.Sqrt(na2*nb2))
}
