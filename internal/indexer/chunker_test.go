package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker_invalid(t *testing.T) {
	_, err := NewChunker(0, 0)
	assert.Error(t, err)
	_, err = NewChunker(-5, 0)
	assert.Error(t, err)
	_, err = NewChunker(10, -1)
	assert.Error(t, err)
}

func TestChunker_Chunk(t *testing.T) {
	c, err := NewChunker(3, 1)
	require.NoError(t, err)

	chunks := c.Chunk("abcdefg")
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		texts[i] = ch.Text
	}
	assert.Equal(t, []string{"abc", "cde", "efg"}, texts)
}

func TestChunker_ChunkReportSizedText(t *testing.T) {
	c, err := NewChunker(800, 200)
	require.NoError(t, err)

	text := strings.Repeat("a", 1600)
	chunks := c.Chunk(text)
	require.Len(t, chunks, 3)

	starts := []int{0, 600, 1200}
	ends := []int{800, 1400, 1600}
	for i, ch := range chunks {
		assert.Equal(t, text[starts[i]:ends[i]], ch.Text, "chunk %d", i)
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c, err := NewChunker(5, 1)
	require.NoError(t, err)
	chunks := c.Chunk("")
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestChunker_ChunkShorterThanWindow(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	chunks := c.Chunk("short report")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short report", chunks[0].Text)
}

func TestChunker_OverlapAtLeastSizeStillAdvances(t *testing.T) {
	c, err := NewChunker(3, 5)
	require.NoError(t, err)
	chunks := c.Chunk("abcdef")
	require.Len(t, chunks, 4)
	assert.Equal(t, "abc", chunks[0].Text)
	assert.Equal(t, "bcd", chunks[1].Text)
	assert.Equal(t, "def", chunks[3].Text)
}

func TestChunker_NoOverlapCount(t *testing.T) {
	for _, n := range []int{1, 9, 10, 11, 95, 100} {
		c, err := NewChunker(10, 0)
		require.NoError(t, err)
		chunks := c.Chunk(strings.Repeat("x", n))
		want := (n + 9) / 10
		assert.Len(t, chunks, want, "length %d", n)
	}
}

func TestChunker_CoversWholeText(t *testing.T) {
	text := "Revenue rose 12% year over year, driven by enterprise renewals. " +
		"Operating margin compressed slightly due to hiring in Q3. Outlook unchanged."
	for _, tc := range []struct{ size, overlap int }{{7, 2}, {16, 0}, {30, 29}, {500, 100}} {
		c, err := NewChunker(tc.size, tc.overlap)
		require.NoError(t, err)
		chunks := c.Chunk(text)

		step := tc.size - tc.overlap
		if step < 1 {
			step = 1
		}
		var rebuilt strings.Builder
		for i, ch := range chunks {
			if i == 0 {
				rebuilt.WriteString(ch.Text)
				continue
			}
			tail := []rune(ch.Text)
			skip := tc.size - step
			if skip > len(tail) {
				skip = len(tail)
			}
			rebuilt.WriteString(string(tail[skip:]))
		}
		assert.Equal(t, text, rebuilt.String(), "size=%d overlap=%d", tc.size, tc.overlap)
		assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1].Text))
	}
}

func TestChunker_CountsRunes(t *testing.T) {
	c, err := NewChunker(2, 0)
	require.NoError(t, err)
	chunks := c.Chunk("日本語です")
	require.Len(t, chunks, 3)
	assert.Equal(t, "日本", chunks[0].Text)
	assert.Equal(t, "す", chunks[2].Text)
}

func TestChunker_Deterministic(t *testing.T) {
	c, err := NewChunker(10, 3)
	require.NoError(t, err)
	text := strings.Repeat("quarterly ", 20)
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func BenchmarkChunker_Chunk(b *testing.B) {
	c, _ := NewChunker(800, 200)
	text := strings.Repeat("Quarterly revenue rose on subscription growth. ", 400)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk(text)
	}
}
