package sink

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterOffset(t *testing.T) {
	var c Counter
	n, err := c.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n2, err := c.Write([]byte("world!"))
	require.NoError(t, err)
	assert.Equal(t, 6, n2)
	assert.EqualValues(t, 11, c.Offset())
}

func TestFanoutDuplicatesWrites(t *testing.T) {
	var a, b bytes.Buffer
	f := NewFanout(&a, &b)
	_, err := f.Write([]byte("appx"))
	require.NoError(t, err)
	assert.Equal(t, "appx", a.String())
	assert.Equal(t, "appx", b.String())
}

func TestSHA256MatchesStdlib(t *testing.T) {
	s := NewSHA256()
	_, err := s.Write([]byte("some archive bytes"))
	require.NoError(t, err)
	want := sha256.Sum256([]byte("some archive bytes"))
	assert.Equal(t, want[:], s.Sum())
}

func TestBase64RoundTrip(t *testing.T) {
	var b Base64
	_, err := b.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, "AQID", b.String())
}

func TestSplitterZeroLengthProducesNoChunks(t *testing.T) {
	sp := NewSplitter(8, func() ChunkWriter { return NewSHA256() })
	require.NoError(t, sp.Close())
	assert.Empty(t, sp.Chunks())
}

func TestSplitterSplitsOnBoundary(t *testing.T) {
	sp := NewSplitter(4, func() ChunkWriter { return NewSHA256() })
	_, err := sp.Write([]byte("abcdefghi"))
	require.NoError(t, err)
	require.NoError(t, sp.Close())
	require.Len(t, sp.Chunks(), 3)
	first := sp.Chunks()[0].(*SHA256)
	want := sha256.Sum256([]byte("abcd"))
	assert.Equal(t, want[:], first.Sum())
	last := sp.Chunks()[2].(*SHA256)
	wantLast := sha256.Sum256([]byte("i"))
	assert.Equal(t, wantLast[:], last.Sum())
}

func TestSplitterExactMultipleDoesNotLeaveTrailingEmptyChunk(t *testing.T) {
	sp := NewSplitter(3, func() ChunkWriter { return NewSHA256() })
	_, err := sp.Write([]byte("abcdef"))
	require.NoError(t, err)
	require.NoError(t, sp.Close())
	assert.Len(t, sp.Chunks(), 2)
}
