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
	"log/slog"

	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/storage"
)

const (
	// DefaultBatchSize is the default number of chunks embedded per batch
	DefaultBatchSize = 100
)

// ChunkIterator walks the chunks of Ready documents in batches.
// A batch never holds chunks of more than one document.
type ChunkIterator struct {
	repo      storage.DocumentRepository
	batchSize int
	logger    *slog.Logger
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: maximum chunks per batch (DefaultBatchSize when <= 0)
func NewChunkIterator(repo storage.DocumentRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{
		repo:      repo,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "reembed"),
	}
}

// Count returns the number of chunks ForEach would visit now.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	docs, err := it.repo.ListReadyDocuments(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, doc := range docs {
		total += doc.ChunkCount
	}
	return total, nil
}

// ForEach calls fn for each batch, documents in ID order and chunks in index order.
// Documents deleted before their chunks are read are skipped.
// Iteration stops on the first error from fn or when ctx is done.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func(doc *core.Document, chunks []*core.DocumentChunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docs, err := it.repo.ListReadyDocuments(ctx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		chunks, err := it.repo.GetChunks(ctx, doc.Id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				it.logger.Info("document deleted before reembedding", "documentID", doc.Id)
				continue
			}
			return err
		}

		for start := 0; start < len(chunks); start += it.batchSize {
			end := min(start+it.batchSize, len(chunks))
			if err := fn(doc, chunks[start:end]); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
