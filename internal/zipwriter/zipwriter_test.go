package zipwriter

import (
	"bytes"
	"compress/flate"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeNamePassesSafeCharsThrough(t *testing.T) {
	assert.Equal(t, "AppxMetadata/AppxBlockMap.xml", SanitizeName("AppxMetadata/AppxBlockMap.xml"))
}

func TestSanitizeNameEscapesUnsafeBytes(t *testing.T) {
	assert.Equal(t, "a%20b%23c", SanitizeName("a b#c"))
}

func TestSanitizeNamePassesContentTypesThrough(t *testing.T) {
	assert.Equal(t, "[Content_Types].xml", SanitizeName("[Content_Types].xml"))
}

func TestWriteLocalHeaderLayout(t *testing.T) {
	e := &Entry{Name: "a.txt", CompressedSize: 5, UncompressedSize: 5, Method: Store, CRC32: 0xdeadbeef}
	var buf bytes.Buffer
	require.NoError(t, e.WriteLocalHeader(&buf))
	b := buf.Bytes()
	require.Len(t, b, 30+5)
	assert.Equal(t, []byte{0x50, 0x4B, 0x03, 0x04}, b[0:4])
	assert.Equal(t, uint16(FileExtractVersion), le16(b[4:6]))
	assert.Equal(t, uint16(0), le16(b[8:10])) // Store method
	assert.Equal(t, uint16(FileTime), le16(b[10:12]))
	assert.Equal(t, uint16(FileDate), le16(b[12:14]))
	assert.Equal(t, "a.txt", string(b[30:]))
}

func TestWriteDirectoryEntryLayout(t *testing.T) {
	e := &Entry{Name: "a.txt", CompressedSize: 5, UncompressedSize: 5, Method: Deflate, HeaderOffset: 42}
	var buf bytes.Buffer
	require.NoError(t, e.WriteDirectoryEntry(&buf))
	b := buf.Bytes()
	require.Len(t, b, 46+5)
	assert.Equal(t, []byte{0x50, 0x4B, 0x01, 0x02}, b[0:4])
	assert.Equal(t, uint16(ArchiverVersion), le16(b[4:6]))
	assert.Equal(t, uint32(42), le32(b[42:46]))
}

func TestWriteFileEntryStoreProducesOneBlockPerChunk(t *testing.T) {
	data := strings.Repeat("x", BlockSize+10)
	var out bytes.Buffer
	entry, blocks, err := WriteFileEntry(&out, 0, "payload.bin", strings.NewReader(data), flate.NoCompression)
	require.NoError(t, err)
	assert.Equal(t, Store, entry.Method)
	assert.EqualValues(t, len(data), entry.UncompressedSize)
	assert.EqualValues(t, len(data), entry.CompressedSize)
	require.Len(t, blocks, 2)
	for _, blk := range blocks {
		assert.Equal(t, NotCompressed, int(blk.CompressedSize))
		assert.Len(t, blk.SHA256, 32)
	}
}

func TestWriteFileEntryDeflateTracksCompressedSizePerBlock(t *testing.T) {
	data := strings.Repeat("compress me please ", 5000)
	var out bytes.Buffer
	entry, blocks, err := WriteFileEntry(&out, 0, "payload.bin", strings.NewReader(data), flate.BestCompression)
	require.NoError(t, err)
	assert.Equal(t, Deflate, entry.Method)
	assert.EqualValues(t, len(data), entry.UncompressedSize)
	assert.Less(t, entry.CompressedSize, entry.UncompressedSize)
	require.NotEmpty(t, blocks)
	var total int64
	for _, blk := range blocks {
		assert.Greater(t, blk.CompressedSize, int64(0))
		total += blk.CompressedSize
	}
	assert.Equal(t, entry.CompressedSize, total)
}

func TestWriteEndOfDirectoryZip64Sentinels(t *testing.T) {
	entries := []*Entry{{Name: "a", CompressedSize: 1, UncompressedSize: 1}}
	var buf bytes.Buffer
	require.NoError(t, WriteEndOfDirectory(&buf, 100, entries))
	b := buf.Bytes()
	// zip64 end record signature
	assert.Equal(t, []byte{0x50, 0x4B, 0x06, 0x06}, b[0:4])
	// zip64 locator signature at offset 56
	assert.Equal(t, []byte{0x50, 0x4B, 0x06, 0x07}, b[56:60])
	// classic EOCD signature at offset 76
	assert.Equal(t, []byte{0x50, 0x4B, 0x05, 0x06}, b[76:80])
	assert.Len(t, b, 56+20+22)
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
