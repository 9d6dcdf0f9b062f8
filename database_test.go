package policyrag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/ai/mock"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/extract"
	"github.com/poiesic/policyrag/ingestion"
	"github.com/poiesic/policyrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir, WithHashEmbedder())
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		assert.NotNil(t, db.DocumentRepository())
		assert.NotNil(t, db.ConversationRepository())
		assert.NotNil(t, db.Provider())
		assert.NotNil(t, db.backend)
		assert.NotNil(t, db.logger)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid AI config", func(t *testing.T) {
		config := ai.NewConfig(ai.WithGenerationModel(""))
		db, err := NewDatabase("", WithInMemory(), WithAIConfig(config))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	db, err := NewDatabase(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestDatabase_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDatabase(dir, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	doc, err := db.DocumentRepository().AddDocument(ctx, &core.Document{
		Filename: "a.txt", OriginalName: "a.txt", MIMEType: extract.MIMEPlainText,
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDatabase(dir, WithAIProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	got, err := db.DocumentRepository().GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.OriginalName)
}

func TestDatabase_EndToEnd(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	provider.GetMockGenerator().Response = "Employees may work remotely two days per week."

	db, err := NewDatabase("", WithInMemory(), WithAIProvider(provider))
	require.NoError(t, err)
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	index, err := db.NewIndex()
	require.NoError(t, err)

	pipeline, err := db.NewIngestionPipeline(index, ingestion.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	defer pipeline.Release()

	orchestrator, err := db.NewOrchestrator(index)
	require.NoError(t, err)

	conversations, err := db.NewConversationService(orchestrator)
	require.NoError(t, err)

	// Nothing is searchable yet
	answer, err := conversations.Ask(ctx, "session-1", "Can I work from home?", "")
	require.NoError(t, err)
	assert.Equal(t, rag.NoDocumentsMessage, answer.Content)
	assert.Empty(t, answer.Sources)

	doc, err := pipeline.Upload(ctx, ingestion.UploadRequest{
		Name:     "remote-work.txt",
		MIMEType: extract.MIMEPlainText,
		Data:     []byte(strings.Repeat("Remote work requires manager approval. ", 60)),
	})
	require.NoError(t, err)
	doc, err = pipeline.Await(ctx, doc.Id)
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, doc.Status)

	answer, err = conversations.Ask(ctx, "session-1", "Can I work from home?", "")
	require.NoError(t, err)
	assert.Equal(t, "Employees may work remotely two days per week.", answer.Content)
	require.NotEmpty(t, answer.Sources)
	assert.LessOrEqual(t, len(answer.Sources), 5)
	assert.Equal(t, "remote-work.txt", answer.Sources[0].DocumentName)

	history, err := conversations.History(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, history, 4)

	status, err := orchestrator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.IndexStateReady, status.State)
	assert.Equal(t, 1, status.DocumentCount)
	assert.Equal(t, doc.ChunkCount, status.EmbeddingCount)

	reembedder, err := db.NewReembedder(nil, nil)
	require.NoError(t, err)
	result, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, result.Chunks)

	require.NoError(t, db.DocumentRepository().DeleteDocument(ctx, doc.Id))
	status, err = orchestrator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.IndexStateEmpty, status.State)
}
