// Package sink provides the small composable byte-consumer types the ZIP
// and APPX writers are built from. Each sink does exactly one thing to
// the bytes that flow through it — count them, hash them, deflate them,
// buffer them, split them into fixed-size chunks — and sinks compose by
// fan-out (Fanout) rather than inheritance, mirroring the C++ template
// sink hierarchy in the original tool's APPX/Sink.h translated to Go
// interfaces and struct methods instead of templates.
package sink

import (
	"bytes"
	"compress/flate"
	"crypto/sha256"
	"encoding/base64"
	"hash"
	"hash/crc32"
	"io"
)

// Writer is the capability every sink shares: it accepts bytes and never
// seeks or reads them back. A plain *os.File already satisfies this, so
// there is no dedicated "file sink" type — os.Create's result is used
// directly wherever the original tool would reach for a FileSink.
type Writer interface {
	io.Writer
}

// Counter reports how many bytes have flowed through it. Fan a Counter
// alongside the real destination writer to observe the current write
// offset without the destination needing to expose one itself — this is
// how the packaging orchestrator tracks each ZIP entry's header offset.
type Counter struct {
	n int64
}

func (c *Counter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Offset returns the number of bytes written so far.
func (c *Counter) Offset() int64 { return c.n }

// Vector accumulates written bytes in memory. Used where a ZIP entry's
// compressed bytes must be fully buffered before its header (which
// carries the compressed size) can be written ahead of them.
type Vector struct {
	bytes.Buffer
}

// CRC32 computes the IEEE CRC-32 of everything written to it.
type CRC32 struct {
	h hash.Hash32
}

// NewCRC32 returns a ready-to-use CRC-32 sink.
func NewCRC32() *CRC32 { return &CRC32{h: crc32.NewIEEE()} }

func (c *CRC32) Write(p []byte) (int, error) { return c.h.Write(p) }

// Sum32 returns the CRC-32 accumulated so far.
func (c *CRC32) Sum32() uint32 { return c.h.Sum32() }

// SHA256 computes the SHA-256 digest of everything written to it.
type SHA256 struct {
	h hash.Hash
}

// NewSHA256 returns a ready-to-use SHA-256 sink.
func NewSHA256() *SHA256 { return &SHA256{h: sha256.New()} }

func (s *SHA256) Write(p []byte) (int, error) { return s.h.Write(p) }

// Sum returns the SHA-256 digest accumulated so far.
func (s *SHA256) Sum() []byte { return s.h.Sum(nil) }

// Close satisfies ChunkWriter; a hash has no finalization step beyond
// Sum, so final is ignored.
func (s *SHA256) Close(final bool) error { return nil }

// Base64 buffers written bytes and renders them as standard base64 on
// demand. Used for the small, fixed-size block-map hash values rather
// than a streaming encoder, since the inputs are always one digest's
// worth of bytes.
type Base64 struct {
	buf bytes.Buffer
}

func (b *Base64) Write(p []byte) (int, error) { return b.buf.Write(p) }

// String returns the base64 encoding of everything written so far.
func (b *Base64) String() string { return base64.StdEncoding.EncodeToString(b.buf.Bytes()) }

// Deflate wraps compress/flate.Writer. Flush performs a Z_SYNC_FLUSH
// equivalent so a caller can measure the compressed size of the data
// written since the last flush point (needed for per-block sizes in the
// block map); Close finishes the DEFLATE stream.
type Deflate struct {
	w *flate.Writer
}

// NewDeflate returns a Deflate sink writing compressed output to dst at
// the given compress/flate level.
func NewDeflate(level int, dst io.Writer) (*Deflate, error) {
	w, err := flate.NewWriter(dst, level)
	if err != nil {
		return nil, err
	}
	return &Deflate{w: w}, nil
}

func (d *Deflate) Write(p []byte) (int, error) { return d.w.Write(p) }

// Flush syncs the DEFLATE stream to a byte boundary without ending it.
func (d *Deflate) Flush() error { return d.w.Flush() }

// Close finishes the DEFLATE stream.
func (d *Deflate) Close() error { return d.w.Close() }

// ChunkWriter is a per-chunk sink handed out by Splitter's factory.
// Close finalizes the chunk (e.g. sums a hash, flushes or finishes a
// per-chunk compressor) before the chunk is retired. final is true only
// for the very last chunk of the stream — a per-chunk DEFLATE sink must
// sync-flush every chunk except that one, which it must finish instead
// (spec: "the per-block flush() call... except for the very last block,
// which uses finish").
type ChunkWriter interface {
	io.Writer
	Close(final bool) error
}

// Splitter breaks a stream of writes into fixed-size logical chunks,
// handing each chunk's bytes to a per-chunk sink built by newChunk. A
// chunk is only created, and only appears in Chunks, once at least one
// byte has been written into it — a zero-length input therefore produces
// zero chunks, matching the original tool's block map behavior for
// empty files.
//
// A chunk that fills to exactly size bytes is not closed immediately:
// whether it is a mid-stream chunk (closed with final=false, once a
// following Write proves more data exists) or the very last chunk of
// the stream (closed with final=true, by Close) cannot be known until
// either happens.
type Splitter struct {
	size     int64
	newChunk func() ChunkWriter

	cur     ChunkWriter
	curN    int64
	curFull bool
	chunks  []ChunkWriter
}

// NewSplitter returns a Splitter that starts a new chunk every size
// bytes, each backed by a fresh sink from newChunk.
func NewSplitter(size int64, newChunk func() ChunkWriter) *Splitter {
	return &Splitter{size: size, newChunk: newChunk}
}

func (s *Splitter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if s.cur == nil {
			s.cur = s.newChunk()
			s.curN = 0
			s.curFull = false
		} else if s.curFull {
			// More data has arrived for a chunk that reached size bytes,
			// so it was not the last chunk after all: close it now.
			if err := s.closeCurrent(false); err != nil {
				return 0, err
			}
			s.cur = s.newChunk()
			s.curN = 0
			s.curFull = false
		}
		remain := s.size - s.curN
		n := int64(len(p))
		if n > remain {
			n = remain
		}
		if _, err := s.cur.Write(p[:n]); err != nil {
			return 0, err
		}
		s.curN += n
		p = p[n:]
		if s.curN == s.size {
			s.curFull = true
		}
	}
	return total, nil
}

func (s *Splitter) closeCurrent(final bool) error {
	if err := s.cur.Close(final); err != nil {
		return err
	}
	s.chunks = append(s.chunks, s.cur)
	s.cur = nil
	s.curN = 0
	s.curFull = false
	return nil
}

// Close finalizes the trailing chunk, if any, as the stream's last one.
func (s *Splitter) Close() error {
	if s.cur != nil {
		return s.closeCurrent(true)
	}
	return nil
}

// Chunks returns the finalized chunk sinks in write order.
func (s *Splitter) Chunks() []ChunkWriter { return s.chunks }

// Fanout writes every call to Write to each of its writers in order,
// stopping at the first error. Used everywhere a byte stream needs to be
// simultaneously written to the archive and digested (or counted, or
// both) without the archive writer knowing anything about hashing.
type Fanout struct {
	writers []io.Writer
}

// NewFanout returns a Fanout that duplicates writes to each of ws.
func NewFanout(ws ...io.Writer) *Fanout { return &Fanout{writers: ws} }

func (f *Fanout) Write(p []byte) (int, error) {
	for _, w := range f.writers {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
