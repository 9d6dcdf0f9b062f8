package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/rag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Search(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Start(5)
	c.SkippedChunk(&core.CorruptChunkError{DocumentId: 1, ChunkIndex: 2, Err: errors.New("bad")})
	c.Finish(12, nil)
	c.Start(5)
	c.Finish(3, nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.SearchTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SkippedChunks))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SearchScanned))
}

func TestCollectors_Answered(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Answered(rag.OutcomeAnswered, "en", 200*time.Millisecond, 5)
	c.Answered(rag.OutcomeAnswered, "es", time.Second, 3)
	c.Answered(rag.OutcomeDegraded, "en", 50*time.Millisecond, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.QueryTotal.WithLabelValues("answered", "en")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.QueryTotal.WithLabelValues("answered", "es")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.QueryTotal.WithLabelValues("degraded", "en")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.QueryTotal.WithLabelValues("no_documents", "en")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.QueryDuration))
}

func TestCollectors_AnsweredUnknownLanguage(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Answered(rag.OutcomeAnswered, "xx-custom", time.Second, 1)
	c.Answered(rag.OutcomeAnswered, "tlh", time.Second, 1)
	c.Answered(rag.OutcomeAnswered, " FR ", time.Second, 1)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.QueryTotal.WithLabelValues("answered", "other")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.QueryTotal.WithLabelValues("answered", "fr")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.QueryTotal))
}

func TestCollectors_DocumentFinished(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.DocumentFinished(&core.Document{Status: core.StatusReady, ChunkCount: 3})
	c.DocumentFinished(&core.Document{Status: core.StatusReady, ChunkCount: 4})
	c.DocumentFinished(&core.Document{Status: core.StatusError, ErrorMessage: "boom"})

	assert.Equal(t, float64(2), testutil.ToFloat64(c.DocumentsProcessed.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.DocumentsProcessed.WithLabelValues("error")))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.ChunksIndexed))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.DocumentFinished(&core.Document{Status: core.StatusReady, ChunkCount: 2})

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `policyrag_documents_processed_total{status="ready"} 2`)
	assert.Contains(t, string(body), "policyrag_chunks_indexed_total 2")
}
