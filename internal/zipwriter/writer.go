package zipwriter

import (
	"io"
	"strings"

	"github.com/sassoftware/appxbuild/internal/sink"
)

// BlockSize is the block-map chunk size mandated by the APPX block-map
// schema: https://msdn.microsoft.com/en-us/library/windows/desktop/jj709947.aspx
const BlockSize = 64 * 1024

// NotCompressed marks a Block whose CompressedSize is meaningless because
// the entry as a whole is stored, not deflated.
const NotCompressed = -1

// Block is one block-map chunk: the SHA-256 of BlockSize uncompressed
// bytes (or fewer, for the final chunk), plus that chunk's compressed
// size when the entry is DEFLATEd.
type Block struct {
	SHA256         []byte
	CompressedSize int64
}

// WriteFileEntry reads all of r, writes its local file header and data
// to w at offset, and returns the resulting directory Entry along with
// its per-block descriptors for the block map. When level is
// flate.NoCompression the entry is stored; otherwise it is DEFLATEd at
// that level — except a bundle sub-package (an archive name ending in
// ".appx"), which is always stored regardless of level, since Windows'
// bundle loader requires sub-packages to be byte-addressable within the
// bundle. Mirrors the original packager's WriteZIPFileEntry template:
// buffer the (possibly compressed) bytes in memory so the header,
// written first, can carry the final compressed size.
func WriteFileEntry(w Writer, offset int64, archiveName string, r io.Reader, level int) (*Entry, []Block, error) {
	name := SanitizeName(archiveName)
	crc := sink.NewCRC32()
	var data sink.Vector

	var blocks []Block
	var method CompressionMethod
	var uncompressedSize, compressedSize int64

	if level == storeLevel || strings.HasSuffix(archiveName, ".appx") {
		var counter sink.Counter
		splitter := sink.NewSplitter(BlockSize, func() sink.ChunkWriter { return sink.NewSHA256() })
		fan := sink.NewFanout(crc, &counter, &data, splitter)
		if _, err := io.Copy(fan, r); err != nil {
			return nil, nil, err
		}
		if err := splitter.Close(); err != nil {
			return nil, nil, err
		}
		for _, c := range splitter.Chunks() {
			blocks = append(blocks, Block{SHA256: c.(*sink.SHA256).Sum(), CompressedSize: NotCompressed})
		}
		uncompressedSize = counter.Offset()
		compressedSize = uncompressedSize
		method = Store
	} else {
		var compressedOffset sink.Counter
		target := sink.NewFanout(&data, &compressedOffset)
		deflate, err := sink.NewDeflate(level, target)
		if err != nil {
			return nil, nil, err
		}
		splitter := sink.NewSplitter(BlockSize, func() sink.ChunkWriter {
			return newDeflateChunk(deflate, &compressedOffset)
		})
		var uncompressedOffset sink.Counter
		fan := sink.NewFanout(splitter, &uncompressedOffset, crc)
		if _, err := io.Copy(fan, r); err != nil {
			return nil, nil, err
		}
		if err := splitter.Close(); err != nil {
			return nil, nil, err
		}
		if len(splitter.Chunks()) == 0 {
			// No bytes were ever written to a chunk (a zero-length file),
			// so no chunk's Close finished the DEFLATE stream; do it here
			// to still emit a valid, terminated empty compressed entry.
			if err := deflate.Close(); err != nil {
				return nil, nil, err
			}
		}
		for _, c := range splitter.Chunks() {
			dc := c.(*deflateChunk)
			blocks = append(blocks, Block{SHA256: dc.sha.Sum(), CompressedSize: dc.compressedSize()})
		}
		uncompressedSize = uncompressedOffset.Offset()
		compressedSize = compressedOffset.Offset()
		method = Deflate
	}

	entry := &Entry{
		Name:             name,
		CompressedSize:   compressedSize,
		UncompressedSize: uncompressedSize,
		Method:           method,
		HeaderOffset:     offset,
		CRC32:            crc.Sum32(),
	}
	if err := entry.WriteLocalHeader(w); err != nil {
		return nil, nil, err
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return nil, nil, err
	}
	return entry, blocks, nil
}

// storeLevel is the sentinel compression level (compress/flate's
// NoCompression) that selects the STORE branch instead of DEFLATE.
const storeLevel = 0

// deflateChunk hashes a chunk's uncompressed bytes while streaming them
// into the shared Deflate sink. On Close it syncs the DEFLATE stream to
// a byte boundary so the compressed size since the last sync point can
// be measured — except for the stream's last chunk, which instead
// finishes the DEFLATE stream, so the finish block's bytes land in the
// last block's compressed size rather than going uncounted.
type deflateChunk struct {
	sha         *sink.SHA256
	deflate     *sink.Deflate
	offset      *sink.Counter
	startOffset int64
	endOffset   int64
}

func newDeflateChunk(deflate *sink.Deflate, offset *sink.Counter) *deflateChunk {
	return &deflateChunk{sha: sink.NewSHA256(), deflate: deflate, offset: offset, startOffset: offset.Offset()}
}

func (c *deflateChunk) Write(p []byte) (int, error) {
	if _, err := c.sha.Write(p); err != nil {
		return 0, err
	}
	return c.deflate.Write(p)
}

func (c *deflateChunk) Close(final bool) error {
	var err error
	if final {
		err = c.deflate.Close()
	} else {
		err = c.deflate.Flush()
	}
	if err != nil {
		return err
	}
	c.endOffset = c.offset.Offset()
	return nil
}

func (c *deflateChunk) compressedSize() int64 {
	return c.endOffset - c.startOffset
}
