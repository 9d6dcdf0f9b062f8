package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/chunker"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/extract"
	"github.com/poiesic/policyrag/search"
	"github.com/poiesic/policyrag/storage"
)

const (
	// DefaultMaxUploadBytes caps the size of a single upload.
	DefaultMaxUploadBytes = 10 << 20

	// DefaultEmbedBatchSize is the number of chunks sent per embedding call.
	DefaultEmbedBatchSize = 16

	defaultPollInterval = 50 * time.Millisecond
)

// Observer is notified when a document reaches a terminal status.
// It runs on the ingestion worker and must not block.
type Observer func(doc *core.Document)

// Pipeline orchestrates the ingestion of uploaded documents.
// Documents are processed concurrently on a worker pool; each document's
// chunks are embedded concurrently on a second pool.
type Pipeline struct {
	documents      storage.DocumentRepository
	index          search.Index
	extractors     *extract.Registry
	embedder       ai.Embedder
	jobPool        *ants.Pool
	embeddingPool  *ants.Pool
	chunkSize      int
	chunkOverlap   int
	batchSize      int
	maxUploadBytes int64
	pollInterval   time.Duration
	observers      []Observer
	proc           *documentProcessor
	inflight       sync.WaitGroup
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pools
		p.releasePools()

		jobPool, embeddingPool, err := newPools(size)
		if err != nil {
			return err
		}
		p.jobPool = jobPool
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithChunking sets the chunk window size and overlap, in runes.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if err := chunker.Validate(size, overlap); err != nil {
			return err
		}
		p.chunkSize = size
		p.chunkOverlap = overlap
		return nil
	}
}

// WithEmbedBatchSize sets how many chunks are embedded per provider call.
func WithEmbedBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("%w: embed batch size must be positive, got %d", core.ErrValidation, size)
		}
		p.batchSize = size
		return nil
	}
}

// WithMaxUploadBytes sets the largest accepted upload.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: max upload size must be positive, got %d", core.ErrValidation, n)
		}
		p.maxUploadBytes = n
		return nil
	}
}

// WithExtractors replaces the extractor registry.
func WithExtractors(registry *extract.Registry) Option {
	return func(p *Pipeline) error {
		if registry != nil {
			p.extractors = registry
		}
		return nil
	}
}

// WithObserver adds a callback run after each document reaches a terminal status.
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) error {
		if observer != nil {
			p.observers = append(p.observers, observer)
		}
		return nil
	}
}

// WithPollInterval sets how often Await checks the document status.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d > 0 {
			p.pollInterval = d
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	index search.Index,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	jobPool, embeddingPool, err := newPools(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		documents:      documents,
		index:          index,
		extractors:     extract.NewRegistry(),
		embedder:       provider.Embedder(),
		jobPool:        jobPool,
		embeddingPool:  embeddingPool,
		chunkSize:      chunker.DefaultSize,
		chunkOverlap:   chunker.DefaultOverlap,
		batchSize:      DefaultEmbedBatchSize,
		maxUploadBytes: DefaultMaxUploadBytes,
		pollInterval:   defaultPollInterval,
		logger:         slog.Default().With("component", "ingestion"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.releasePools()
			return nil, optErr
		}
	}

	// Create processors after options are applied (so they get final config)
	embeddings, err := newEmbeddingProcessor(p.embedder, p.embeddingPool, p.batchSize, p.logger)
	if err != nil {
		p.releasePools()
		return nil, err
	}
	p.proc = &documentProcessor{
		extractors: p.extractors,
		embeddings: embeddings,
		index:      index,
		size:       p.chunkSize,
		overlap:    p.chunkOverlap,
		batchSize:  p.batchSize,
		logger:     p.logger,
	}

	return p, nil
}

// newPools creates the document job pool and the embedding pool.
// The job pool never blocks the submitter; a full pool is reported instead.
func newPools(size int) (*ants.Pool, *ants.Pool, error) {
	jobPool, err := ants.NewPool(size*4, ants.WithNonblocking(true))
	if err != nil {
		return nil, nil, err
	}
	embeddingPool, err := ants.NewPool(size)
	if err != nil {
		jobPool.Release()
		return nil, nil, err
	}
	return jobPool, embeddingPool, nil
}

// UploadRequest is a document received from an uploader.
type UploadRequest struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Upload validates the request, stores a processing document and begins its ingestion.
// It returns as soon as the document exists; use Await to observe completion.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*core.Document, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyFilename)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: upload %q is empty", core.ErrValidation, name)
	}
	if int64(len(req.Data)) > p.maxUploadBytes {
		return nil, fmt.Errorf("%w: upload %q is %d bytes, limit is %d",
			core.ErrValidation, name, len(req.Data), p.maxUploadBytes)
	}
	if !p.extractors.Supports(req.MIMEType) {
		return nil, fmt.Errorf("%w: unsupported MIME type %q", core.ErrValidation, req.MIMEType)
	}

	doc, err := p.documents.AddDocument(ctx, &core.Document{
		Filename:     uuid.NewString() + strings.ToLower(filepath.Ext(name)),
		OriginalName: name,
		MIMEType:     req.MIMEType,
		Size:         int64(len(req.Data)),
		Checksum:     core.Checksum(req.Data),
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("document uploaded", "documentID", doc.Id, "name", name, "size", doc.Size)

	if err := p.BeginIngestion(ctx, doc.Id, req.Data); err != nil {
		return doc, err
	}
	return doc, nil
}

// BeginIngestion queues a processing document for ingestion and returns immediately.
// The outcome is recorded on the document's status.
func (p *Pipeline) BeginIngestion(ctx context.Context, documentID core.ID, raw []byte) error {
	doc, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != core.StatusProcessing {
		return fmt.Errorf("%w: document %d is %s", core.ErrInvalidTransition, documentID, doc.Status)
	}

	data := append([]byte(nil), raw...)
	jobCtx := context.WithoutCancel(ctx)

	p.inflight.Add(1)
	err = p.jobPool.Submit(func() {
		defer p.inflight.Done()
		p.run(jobCtx, doc, data)
	})
	if err != nil {
		p.inflight.Done()
		if errors.Is(err, ants.ErrPoolOverload) {
			err = ErrPipelineBusy
		}
		p.logger.Error("error queuing document", "documentID", documentID, "err", err)
		p.fail(jobCtx, doc.Id, err)
		return err
	}
	return nil
}

// run processes one document and records the terminal status.
func (p *Pipeline) run(ctx context.Context, doc *core.Document, raw []byte) {
	start := time.Now()
	logger := p.logger.With("documentID", doc.Id)

	count, err := p.proc.process(ctx, doc, raw)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.Info("document deleted during ingestion")
			return
		}
		logger.Error("error ingesting document", "err", err)
		p.fail(ctx, doc.Id, err)
		return
	}

	ready, err := p.documents.MarkReady(ctx, doc.Id, count)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.Info("document deleted during ingestion")
			return
		}
		logger.Error("error marking document ready", "err", err)
		p.fail(ctx, doc.Id, err)
		return
	}

	logger.Info("document ready", "chunks", count, "duration", time.Since(start))
	p.notify(ready)
}

// fail records err on the document. A deleted document is left alone.
func (p *Pipeline) fail(ctx context.Context, documentID core.ID, cause error) {
	failed, err := p.documents.MarkFailed(ctx, documentID, cause.Error())
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			p.logger.Error("error marking document failed", "documentID", documentID, "err", err)
		}
		return
	}
	p.notify(failed)
}

func (p *Pipeline) notify(doc *core.Document) {
	for _, observer := range p.observers {
		observer(doc)
	}
}

// Await polls the document until it reaches a terminal status or ctx ends.
func (p *Pipeline) Await(ctx context.Context, documentID core.ID) (*core.Document, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		doc, err := p.documents.GetDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if doc.Status.IsTerminal() {
			return doc, nil
		}

		select {
		case <-ctx.Done():
			return doc, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Wait blocks until every queued document has finished processing.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Release waits for queued documents and releases the worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.inflight.Wait()
	p.releasePools()
}

func (p *Pipeline) releasePools() {
	if p.jobPool != nil {
		p.jobPool.Release()
	}
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
