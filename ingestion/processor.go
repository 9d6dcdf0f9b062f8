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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/poiesic/policyrag/chunker"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/extract"
	"github.com/poiesic/policyrag/search"
)

// chunksPerPage approximates page numbers for chunk metadata.
const chunksPerPage = 3

// documentProcessor runs the extract, chunk, embed and persist steps for one document.
type documentProcessor struct {
	extractors *extract.Registry
	embeddings *embeddingProcessor
	index      search.Index
	size       int
	overlap    int
	batchSize  int
	logger     *slog.Logger
}

// process persists the chunks of doc and returns how many were stored.
// Chunks are stored in index order regardless of embedding concurrency.
func (dp *documentProcessor) process(ctx context.Context, doc *core.Document, raw []byte) (int, error) {
	logger := dp.logger.With("documentID", doc.Id)

	extractor, err := dp.extractors.Lookup(doc.MIMEType)
	if err != nil {
		return 0, err
	}
	text, err := extractor.Extract(ctx, raw)
	if err != nil {
		return 0, err
	}

	pieces, err := chunker.Chunk(text, dp.size, dp.overlap)
	if err != nil {
		return 0, err
	}
	if len(pieces) == 0 {
		return 0, fmt.Errorf("%w: %w", core.ErrExtraction, ErrNoText)
	}
	logger.Debug("chunked document", "extractor", extractor.Name(), "chunks", len(pieces))

	vectors, err := dp.embeddings.embed(ctx, pieces)
	if err != nil {
		return 0, err
	}

	chunks := make([]*core.DocumentChunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = &core.DocumentChunk{
			ChunkIndex: i,
			Content:    content,
			Vector:     vectors[i],
			Metadata: map[string]string{
				"page":    strconv.Itoa(i/chunksPerPage + 1),
				"section": strconv.Itoa(i),
			},
		}
	}

	for start := 0; start < len(chunks); start += dp.batchSize {
		end := min(start+dp.batchSize, len(chunks))
		if _, err := dp.index.Index(ctx, doc.Id, chunks[start:end]); err != nil {
			return 0, err
		}
	}

	logger.Debug("stored chunks", "chunks", len(chunks))
	return len(chunks), nil
}
