package hashembed

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/policyrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	assert.Equal(t, int32(0), Hash(""))
	assert.Equal(t, int32('a'), Hash("a"))
	assert.Equal(t, int32('a')*31+int32('b'), Hash("ab"))
	// "hello world" overflows int32 and wraps
	assert.Equal(t, int32(1794106052), Hash("hello world"))
}

func TestVector_Formula(t *testing.T) {
	v := Vector("policy", 8)
	h := float64(Hash("policy"))
	for i := range v {
		want := float32(math.Sin(h+float64(i)) * math.Cos(h*float64(i)))
		assert.Equal(t, want, v[i])
	}

	empty := Vector("", 4)
	// h = 0: sin(i) * cos(0)
	for i := range empty {
		assert.Equal(t, float32(math.Sin(float64(i))), empty[i])
	}
}

func TestEmbedText_Deterministic(t *testing.T) {
	e := New()
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "How many vacation days do I get?")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "How many vacation days do I get?")
	require.NoError(t, err)

	assert.Len(t, a, core.EmbeddingDimension)
	assert.Equal(t, a, b)

	c, err := e.EmbedText(ctx, "Different question")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEmbedTexts(t *testing.T) {
	e := New()
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	vectors, err := e.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, text := range texts {
		single, err := e.EmbedText(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, vectors[i])
	}
}

func TestEmbed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().EmbedText(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = New().EmbedTexts(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
