package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend  *Backend
	docSeq   *badger.Sequence
	chunkSeq *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	docSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	chunkSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		docSeq.Release()
		return nil, err
	}

	return &DocumentRepository{
		backend:  backend,
		docSeq:   docSeq,
		chunkSeq: chunkSeq,
	}, nil
}

// Close releases the ID sequences.
func (r *DocumentRepository) Close() error {
	return errors.Join(r.docSeq.Release(), r.chunkSeq.Release())
}

// AddDocument stores a new document in StatusProcessing.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", core.ErrValidation)
	}

	doc.Status = core.StatusProcessing
	doc.ChunkCount = 0
	doc.ErrorMessage = ""
	doc.ProcessedAt = time.Time{}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	doc.UploadedAt = doc.UploadedAt.Truncate(time.Microsecond)
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	id, err := nextID(r.docSeq)
	if err != nil {
		return nil, err
	}
	doc.Id = core.ID(id)

	err = r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	})
	return doc, err
}

// ListDocuments returns all documents ordered by ID.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	return r.listDocuments(func(*core.Document) bool { return true })
}

// ListReadyDocuments returns the ready documents ordered by ID.
func (r *DocumentRepository) ListReadyDocuments(ctx context.Context) ([]*core.Document, error) {
	return r.listDocuments(func(doc *core.Document) bool {
		return doc.Status == core.StatusReady
	})
}

func (r *DocumentRepository) listDocuments(keep func(*core.Document) bool) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		return iterateDocuments(tx, func(doc *core.Document) error {
			if keep(doc) {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	return docs, err
}

// MarkReady moves a processing document to StatusReady.
func (r *DocumentRepository) MarkReady(ctx context.Context, id core.ID, chunkCount int) (*core.Document, error) {
	return r.transition(id, core.StatusReady, func(tx *badger.Txn, doc *core.Document) error {
		stored, err := countChunks(tx, id)
		if err != nil {
			return err
		}
		if stored != chunkCount {
			return fmt.Errorf("%w: document %d has %d chunks, expected %d",
				storage.ErrChunkCountMismatch, id, stored, chunkCount)
		}
		doc.ChunkCount = chunkCount
		doc.ProcessedAt = time.Now().UTC().Truncate(time.Microsecond)
		return nil
	})
}

// MarkFailed moves a processing document to StatusError.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id core.ID, message string) (*core.Document, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: error message cannot be empty", core.ErrValidation)
	}
	return r.transition(id, core.StatusError, func(_ *badger.Txn, doc *core.Document) error {
		doc.ErrorMessage = message
		return nil
	})
}

// transition applies a lifecycle change inside one transaction.
// Terminal documents are never rewritten.
func (r *DocumentRepository) transition(id core.ID, to core.DocumentStatus, apply func(tx *badger.Txn, doc *core.Document) error) (*core.Document, error) {
	var result *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if err := core.ValidateTransition(doc.Status, to); err != nil {
			return fmt.Errorf("document %d: %w", id, err)
		}
		doc.Status = to
		if err := apply(tx, doc); err != nil {
			return err
		}
		if err := core.ValidateDocument(doc); err != nil {
			return err
		}
		result = doc
		return tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteDocument removes a document together with all of its chunks.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		if _, err := readDocument(tx, id); err != nil {
			return err
		}

		// Collect first; deleting while the iterator is open is not allowed
		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialChunkKey(id)
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Delete(makeDocumentKey(id))
	})
}

// AddChunks stores chunks for a processing document.
func (r *DocumentRepository) AddChunks(ctx context.Context, documentID core.ID, chunks ...*core.DocumentChunk) ([]*core.DocumentChunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	for _, chunk := range chunks {
		id, err := nextID(r.chunkSeq)
		if err != nil {
			return nil, err
		}
		chunk.Id = core.ID(id)
		chunk.DocumentId = documentID
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, documentID)
		if err != nil {
			return err
		}
		if doc.Status != core.StatusProcessing {
			return fmt.Errorf("%w: document %d is %s", core.ErrInvalidTransition, documentID, doc.Status)
		}

		// Rewrite the document so a concurrent delete that already read it
		// conflicts and re-runs, removing these chunks too.
		if err := tx.Set(makeDocumentKey(documentID), storage.MarshalDocument(doc)); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, chunk := range chunks {
			chunk.InsertedAt = now
			key := makeChunkKey(documentID, chunk.ChunkIndex)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunks returns the chunks of a document ordered by ChunkIndex.
func (r *DocumentRepository) GetChunks(ctx context.Context, documentID core.ID) ([]*core.DocumentChunk, error) {
	var chunks []*core.DocumentChunk
	err := r.backend.View(func(tx *badger.Txn) error {
		if _, err := readDocument(tx, documentID); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			chunk, err := readChunk(iter.Item())
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	return chunks, err
}

// UpdateChunks replaces the stored content of existing chunks.
func (r *DocumentRepository) UpdateChunks(ctx context.Context, chunks ...*core.DocumentChunk) error {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
	}

	return r.backend.Update(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if _, err := readDocument(tx, chunk.DocumentId); err != nil {
				return err
			}
			key := makeChunkKey(chunk.DocumentId, chunk.ChunkIndex)
			if _, err := tx.Get(key); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("chunk %d of document %d: %w", chunk.ChunkIndex, chunk.DocumentId, storage.ErrNotFound)
				}
				return err
			}
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanReadyChunks visits every chunk of every ready document.
// Documents and chunks are read from the same snapshot, so a document that
// becomes ready concurrently is either fully visible or not at all.
func (r *DocumentRepository) ScanReadyChunks(ctx context.Context, fn storage.ChunkVisitor) error {
	return r.backend.View(func(tx *badger.Txn) error {
		ready := make(map[core.ID]*core.Document)
		err := iterateDocuments(tx, func(doc *core.Document) error {
			if doc.Status == core.StatusReady {
				ready[doc.Id] = doc
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(ready) == 0 {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := iter.Item()
			documentID, chunkIndex, ok := parseChunkKey(item.Key())
			if !ok {
				continue
			}
			doc, isReady := ready[documentID]
			if !isReady {
				continue
			}

			chunk, err := readChunk(item)
			if err == nil && len(chunk.Vector) == 0 {
				err = core.ErrEmptyVector
			}
			if err != nil {
				corrupt := &core.CorruptChunkError{DocumentId: documentID, ChunkIndex: chunkIndex, Err: err}
				if err := fn(doc, nil, corrupt); err != nil {
					return err
				}
				continue
			}

			if err := fn(doc, chunk, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Helper functions

// readDocument reads a document from the transaction.
// Returns storage.ErrNotFound if it does not exist.
func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}

// readChunk decodes the chunk stored in item.
func readChunk(item *badger.Item) (*core.DocumentChunk, error) {
	var chunk *core.DocumentChunk
	err := item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// iterateDocuments calls fn for every stored document in ID order.
func iterateDocuments(tx *badger.Txn, fn func(doc *core.Document) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(documentPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var doc *core.Document
		err := iter.Item().Value(func(val []byte) error {
			var unmarshalErr error
			doc, unmarshalErr = storage.UnmarshalDocument(val)
			return unmarshalErr
		})
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// countChunks counts the stored chunks of a document without reading values.
func countChunks(tx *badger.Txn, documentID core.ID) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makePartialChunkKey(documentID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count, nil
}
