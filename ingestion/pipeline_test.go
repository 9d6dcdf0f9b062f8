package ingestion

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/policyrag/ai/mock"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/extract"
	"github.com/poiesic/policyrag/search"
	"github.com/poiesic/policyrag/storage"
	"github.com/poiesic/policyrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	documents storage.DocumentRepository
	index     *search.Linear
	embedder  *mock.MockEmbedder
	provider  *mock.MockProvider
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	docRepo, convRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		convRepo.Close()
		docRepo.Close()
		backend.Close()
	})

	index, err := search.NewLinear(docRepo)
	require.NoError(t, err)

	provider := mock.NewMockProvider().(*mock.MockProvider)
	return &testEnv{
		documents: docRepo,
		index:     index,
		embedder:  provider.GetMockEmbedder(),
		provider:  provider,
	}
}

func (e *testEnv) newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	p, err := NewPipeline(e.documents, e.index, e.provider, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func upload(t *testing.T, p *Pipeline, name, mimeType string, data []byte) *core.Document {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc, err := p.Upload(ctx, UploadRequest{Name: name, MIMEType: mimeType, Data: data})
	require.NoError(t, err)
	doc, err = p.Await(ctx, doc.Id)
	require.NoError(t, err)
	return doc
}

func TestNewPipeline(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("valid configuration", func(t *testing.T) {
		p, err := NewPipeline(env.documents, env.index, env.provider)
		require.NoError(t, err)
		defer p.Release()
		assert.Equal(t, DefaultMaxUploadBytes, int(p.maxUploadBytes))
		assert.Equal(t, DefaultEmbedBatchSize, p.batchSize)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := NewPipeline(nil, env.index, env.provider)
		assert.ErrorIs(t, err, ErrRepositoryRequired)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewPipeline(env.documents, nil, env.provider)
		assert.ErrorIs(t, err, ErrIndexRequired)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewPipeline(env.documents, env.index, nil)
		assert.ErrorIs(t, err, ErrAIProviderRequired)
	})

	t.Run("invalid chunking", func(t *testing.T) {
		_, err := NewPipeline(env.documents, env.index, env.provider, WithChunking(100, 100))
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("invalid batch size", func(t *testing.T) {
		_, err := NewPipeline(env.documents, env.index, env.provider, WithEmbedBatchSize(0))
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestUpload_PlainText(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t)

	data := []byte(strings.Repeat("a", 2500))
	doc := upload(t, p, "handbook.txt", extract.MIMEPlainText, data)

	assert.Equal(t, core.StatusReady, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Empty(t, doc.ErrorMessage)
	assert.False(t, doc.ProcessedAt.IsZero())
	assert.Equal(t, "handbook.txt", doc.OriginalName)
	assert.True(t, strings.HasSuffix(doc.Filename, ".txt"))
	assert.NotEqual(t, doc.OriginalName, doc.Filename)
	assert.Equal(t, core.Checksum(data), doc.Checksum)
	assert.Equal(t, int64(2500), doc.Size)

	chunks, err := env.documents.GetChunks(context.Background(), doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Len(t, chunk.Vector, core.EmbeddingDimension)
	}
	assert.Len(t, chunks[0].Content, 1000)
	assert.Len(t, chunks[2].Content, 900)
}

// embedSignature derives a vector from the text so a chunk stored with
// another chunk's vector is detectable.
func embedSignature(text string) []float32 {
	return []float32{float32(text[0]), float32(len(text)), 1}
}

func TestUpload_OutOfOrderBatchesKeepChunkOrder(t *testing.T) {
	env := setupTestEnv(t)

	// The first batch completes only after both later batches have.
	var (
		mu        sync.Mutex
		completed []string
	)
	laterDone := make(chan struct{}, 2)
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		first := texts[0][0] == 'a'
		if first {
			for range 2 {
				select {
				case <-laterDone:
				case <-time.After(2 * time.Second):
					return nil, errors.New("later batches never ran")
				}
			}
		}

		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = embedSignature(text)
		}

		mu.Lock()
		completed = append(completed, texts[0][:1])
		mu.Unlock()
		if !first {
			laterDone <- struct{}{}
		}
		return vectors, nil
	}

	p := env.newPipeline(t, WithPoolSize(4), WithChunking(100, 0), WithEmbedBatchSize(2))

	letters := "abcdef"
	var text strings.Builder
	for _, r := range letters {
		text.WriteString(strings.Repeat(string(r), 100))
	}
	doc := upload(t, p, "sections.txt", extract.MIMEPlainText, []byte(text.String()))
	require.Equal(t, core.StatusReady, doc.Status, doc.ErrorMessage)
	assert.Equal(t, 6, doc.ChunkCount)

	mu.Lock()
	assert.Equal(t, "a", completed[len(completed)-1], "first batch should finish last")
	mu.Unlock()

	chunks, err := env.documents.GetChunks(context.Background(), doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, len(letters))
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, strings.Repeat(letters[i:i+1], 100), chunk.Content)
		assert.Equal(t, embedSignature(chunk.Content), chunk.Vector, "chunk %d", i)
	}
}

func TestUpload_ChunkMetadata(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t, WithChunking(100, 0), WithEmbedBatchSize(2))

	doc := upload(t, p, "policy.md", extract.MIMEMarkdown, []byte(strings.Repeat("x", 450)))
	require.Equal(t, core.StatusReady, doc.Status)
	require.Equal(t, 5, doc.ChunkCount)

	chunks, err := env.documents.GetChunks(context.Background(), doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	wantPages := []string{"1", "1", "1", "2", "2"}
	for i, chunk := range chunks {
		assert.Equal(t, wantPages[i], chunk.Metadata["page"], "chunk %d", i)
		assert.Equal(t, strconv.Itoa(i), chunk.Metadata["section"], "chunk %d", i)
	}
	// Five chunks in batches of two
	assert.Equal(t, 3, env.embedder.CallCount())
}

func TestUpload_Placeholders(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t)

	doc := upload(t, p, "scan.pdf", extract.MIMEPDF, []byte("%PDF-1.4 binary"))
	assert.Equal(t, core.StatusReady, doc.Status)
	assert.Positive(t, doc.ChunkCount)

	chunks, err := env.documents.GetChunks(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Contains(t, chunks[0].Content, "Remote Work Policy")
}

func TestUpload_Validation(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t, WithMaxUploadBytes(16))
	ctx := context.Background()

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"empty name", UploadRequest{Name: " ", MIMEType: extract.MIMEPlainText, Data: []byte("x")}},
		{"empty data", UploadRequest{Name: "a.txt", MIMEType: extract.MIMEPlainText}},
		{"too large", UploadRequest{Name: "a.txt", MIMEType: extract.MIMEPlainText, Data: make([]byte, 17)}},
		{"unsupported type", UploadRequest{Name: "a.png", MIMEType: "image/png", Data: []byte("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := p.Upload(ctx, tt.req)
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.Nil(t, doc)
		})
	}

	docs, err := env.documents.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpload_EmbeddingFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service unavailable")
	}
	p := env.newPipeline(t)

	doc := upload(t, p, "policy.txt", extract.MIMEPlainText, []byte("Employees may work remotely."))
	assert.Equal(t, core.StatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "embedding service unavailable")
	assert.Zero(t, doc.ChunkCount)

	chunks, err := env.documents.GetChunks(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestUpload_NoText(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t)

	doc := upload(t, p, "blank.txt", extract.MIMEPlainText, []byte("   \n\t  "))
	assert.Equal(t, core.StatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, ErrNoText.Error())
	assert.Zero(t, env.embedder.CallCount())
}

func TestUpload_Observer(t *testing.T) {
	env := setupTestEnv(t)

	var (
		mu       sync.Mutex
		observed []*core.Document
	)
	p := env.newPipeline(t, WithObserver(func(doc *core.Document) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, doc)
	}))

	ready := upload(t, p, "ok.txt", extract.MIMEPlainText, []byte("Leave accrues monthly."))
	failed := upload(t, p, "blank.txt", extract.MIMEPlainText, []byte(" "))
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 2)
	byID := map[core.ID]core.DocumentStatus{}
	for _, doc := range observed {
		byID[doc.Id] = doc.Status
	}
	assert.Equal(t, core.StatusReady, byID[ready.Id])
	assert.Equal(t, core.StatusError, byID[failed.Id])
}

func TestUpload_DeletedDuringIngestion(t *testing.T) {
	env := setupTestEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		once.Do(func() { close(started) })
		<-release
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 0, 0}
		}
		return vectors, nil
	}

	var observed int
	p := env.newPipeline(t, WithObserver(func(*core.Document) { observed++ }))
	ctx := context.Background()

	doc, err := p.Upload(ctx, UploadRequest{
		Name:     "retired.txt",
		MIMEType: extract.MIMEPlainText,
		Data:     []byte(strings.Repeat("Retired policy text. ", 200)),
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, env.documents.DeleteDocument(ctx, doc.Id))
	close(release)
	p.Wait()

	_, err = env.documents.GetDocument(ctx, doc.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)

	visited := 0
	err = env.documents.ScanReadyChunks(ctx, func(*core.Document, *core.DocumentChunk, error) error {
		visited++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, visited)
	assert.Zero(t, observed)
}

func TestBeginIngestion_Busy(t *testing.T) {
	env := setupTestEnv(t)

	release := make(chan struct{})
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-release
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 0, 0}
		}
		return vectors, nil
	}
	p := env.newPipeline(t, WithPoolSize(1))
	ctx := context.Background()

	// A pool size of one admits four queued documents
	for i := 0; i < 4; i++ {
		_, err := p.Upload(ctx, UploadRequest{Name: "a.txt", MIMEType: extract.MIMEPlainText, Data: []byte("text")})
		require.NoError(t, err)
	}

	doc, err := p.Upload(ctx, UploadRequest{Name: "b.txt", MIMEType: extract.MIMEPlainText, Data: []byte("text")})
	require.ErrorIs(t, err, ErrPipelineBusy)
	require.NotNil(t, doc)

	failed, err := env.documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, failed.Status)
	assert.Equal(t, ErrPipelineBusy.Error(), failed.ErrorMessage)

	close(release)
	p.Wait()

	docs, err := env.documents.ListReadyDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestBeginIngestion_RequiresProcessing(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t)
	ctx := context.Background()

	doc := upload(t, p, "done.txt", extract.MIMEPlainText, []byte("Finished."))
	require.Equal(t, core.StatusReady, doc.Status)

	err := p.BeginIngestion(ctx, doc.Id, []byte("again"))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	err = p.BeginIngestion(ctx, core.ID(9999), []byte("missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAwait_ContextCancelled(t *testing.T) {
	env := setupTestEnv(t)
	p := env.newPipeline(t)

	doc, err := env.documents.AddDocument(context.Background(), &core.Document{
		Filename:     "pending.txt",
		OriginalName: "pending.txt",
		MIMEType:     extract.MIMEPlainText,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got, err := p.Await(ctx, doc.Id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, got)
	assert.Equal(t, core.StatusProcessing, got.Status)
}
