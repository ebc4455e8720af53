package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitterValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "defaults", size: DefaultSize, overlap: DefaultOverlap},
		{name: "no overlap", size: 10, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", size: 10, overlap: -1, wantErr: true},
		{name: "overlap equals size", size: 10, overlap: 10, wantErr: true},
		{name: "overlap exceeds size", size: 10, overlap: 11, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitBoundaryMath(t *testing.T) {
	// 25 characters, size=10, overlap=3: windows start at 0, 7, 14, 21.
	text := "abcdefghijklmnopqrstuvwxy"
	require.Len(t, text, 25)

	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	chunks := s.Split(text)
	require.Len(t, chunks, 4)
	assert.Equal(t, text[0:10], chunks[0])
	assert.Equal(t, text[7:17], chunks[1])
	assert.Equal(t, text[14:24], chunks[2])
	assert.Equal(t, text[21:25], chunks[3])
}

func TestSplitOverlapShared(t *testing.T) {
	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	chunks := s.Split(strings.Repeat("x", 17) + "abc")
	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		assert.Equal(t, prev[len(prev)-3:], chunks[i][:3])
	}
}

func TestSplitDeterministic(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox ", 40)
	assert.Equal(t, s.Split(text), s.Split(text))
}

func TestSplitDocumentSizedInput(t *testing.T) {
	// 9000 characters with defaults: windows [0,3500), [2900,6400), [5800,9000).
	text := strings.Repeat("a", 9000)

	s, err := NewSplitter(DefaultSize, DefaultOverlap)
	require.NoError(t, err)

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3500)
	assert.Len(t, chunks[1], 3500)
	assert.Len(t, chunks[2], 3200)
}

func TestSplitMultiByteRunes(t *testing.T) {
	// Size and overlap count code points: 21 runes, size=10, overlap=3 gives
	// windows starting at runes 0, 7 and 14, and no window may cut a rune.
	text := "a" + strings.Repeat("é", 20)

	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
	}
	assert.Equal(t, "a"+strings.Repeat("é", 9), chunks[0])
	assert.Equal(t, strings.Repeat("é", 10), chunks[1])
	assert.Equal(t, strings.Repeat("é", 7), chunks[2])
}

func TestSplitShortInputSingleWindow(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitTrimsWhitespace(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	chunks := s.Split("  \n hello world \t ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}
