// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the maximum number of chunks embedded per call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a reembedding run.
type Result struct {
	Chunks    int // chunks whose vectors were replaced
	Documents int // documents with at least one replaced chunk
	Skipped   int // chunks of documents deleted during the run
	Elapsed   time.Duration
}

// Reembedder replaces the vectors of every chunk of every Ready document.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.DocumentRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run reembeds all chunks of Ready documents.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	result := &Result{}
	if total == 0 {
		fmt.Fprintf(r.progress, "No ready documents found (0 chunks)\n")
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	var (
		lastDoc core.ID
		deleted core.ID
	)
	err = r.iterator.ForEach(ctx, func(doc *core.Document, chunks []*core.DocumentChunk) error {
		if doc.Id == deleted {
			result.Skipped += len(chunks)
			return nil
		}

		if err := r.processor.Process(ctx, chunks); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				r.logger.Info("document deleted during reembedding", "documentID", doc.Id)
				deleted = doc.Id
				result.Skipped += len(chunks)
				return nil
			}
			return fmt.Errorf("failed to process document %d: %w", doc.Id, err)
		}

		if doc.Id != lastDoc {
			lastDoc = doc.Id
			result.Documents++
		}
		result.Chunks += len(chunks)
		tracker.Add(len(chunks))
		return nil
	})
	if err != nil {
		return result, err
	}

	tracker.Finish()

	result.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks of %d documents in %v (%.1f chunks/sec)\n",
		result.Chunks, result.Documents, result.Elapsed.Round(time.Millisecond), float64(result.Chunks)/result.Elapsed.Seconds())

	return result, nil
}
