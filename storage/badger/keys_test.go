package badger

import (
	"bytes"
	"testing"
	"time"

	"github.com/poiesic/policyrag/core"
	"github.com/stretchr/testify/assert"
)

func TestChunkKeyOrdering(t *testing.T) {
	// Numeric order must survive lexicographic comparison
	assert.Equal(t, -1, bytes.Compare(makeChunkKey(1, 9), makeChunkKey(1, 10)))
	assert.Equal(t, -1, bytes.Compare(makeChunkKey(1, 300), makeChunkKey(2, 0)))
	assert.True(t, bytes.HasPrefix(makeChunkKey(5, 3), makePartialChunkKey(5)))
}

func TestParseChunkKey(t *testing.T) {
	docID, index, ok := parseChunkKey(makeChunkKey(core.ID(77), 12))
	assert.True(t, ok)
	assert.Equal(t, core.ID(77), docID)
	assert.Equal(t, 12, index)

	_, _, ok = parseChunkKey([]byte("chk:short"))
	assert.False(t, ok)
}

func TestMessageKeyOrdering(t *testing.T) {
	earlier := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Millisecond)

	assert.Equal(t, -1, bytes.Compare(makeMessageKey(1, earlier, 9), makeMessageKey(1, later, 2)))
	assert.Equal(t, -1, bytes.Compare(makeMessageKey(1, earlier, 1), makeMessageKey(1, earlier, 2)))
	assert.True(t, bytes.HasPrefix(makeMessageKey(3, later, 1), makePartialMessageKey(3)))
}

func TestPrefixesDoNotOverlapSequences(t *testing.T) {
	for _, seq := range []string{documentIDSeq, chunkIDSeq, conversationIDSeq, messageIDSeq} {
		for _, prefix := range []string{documentPrefix, chunkPrefix, conversationPrefix, conversationSessionPrefix, messagePrefix} {
			assert.False(t, bytes.HasPrefix([]byte(seq), []byte(prefix)), "%s overlaps %s", seq, prefix)
		}
	}
}
