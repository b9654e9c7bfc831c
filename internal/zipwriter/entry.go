// Package zipwriter implements the deterministic, streaming ZIP64 writer
// the APPX format is built on top of. It intentionally does not use
// archive/zip for writing: the spec requires exact control over record
// layout, fixed timestamps, no data descriptors, and a digest fanned out
// across every byte written, none of which archive/zip.Writer exposes.
// The record layouts here are grounded byte-for-byte on the original
// packager's ZIP.h; the field-naming and accessor style follows relic's
// lib/zipslicer/directory.go.
package zipwriter

import (
	"encoding/binary"

	"github.com/sassoftware/appxbuild/internal/apperr"
)

// Deterministic MS-DOS timestamp fields. Fixed so that byte-identical
// inputs always produce a byte-identical archive.
const (
	FileTime = 0x8706
	FileDate = 0x4722
)

// Version fields recorded in every entry and the end-of-directory
// records.
const (
	ArchiverVersion       = 45 // version-made-by in central directory / zip64 end record
	FileExtractVersion    = 20 // version-needed-to-extract for STORE/DEFLATE entries
	ArchiveExtractVersion = 45 // version-needed-to-extract for the zip64 end record
)

// CompressionMethod identifies how an entry's bytes are stored.
type CompressionMethod uint16

const (
	Store   CompressionMethod = 0
	Deflate CompressionMethod = 8
)

const (
	localFileHeaderSignature = 0x04034B50
	centralDirSignature      = 0x02014B50
)

// Entry describes one file that has been written into the archive body.
// It carries everything needed to later emit the entry's central
// directory record; it holds no content digest (callers that need a
// part's whole-file SHA-256 compute it themselves).
type Entry struct {
	Name             string // sanitized archive name
	CompressedSize   int64
	UncompressedSize int64
	Method           CompressionMethod
	HeaderOffset     int64
	CRC32            uint32
}

// HeaderSize returns the byte length of this entry's local file header,
// including the name but not the entry's data.
func (e *Entry) HeaderSize() int64 {
	return 30 + int64(len(e.Name))
}

// RecordSize returns HeaderSize plus the compressed data length.
func (e *Entry) RecordSize() int64 {
	return e.HeaderSize() + e.CompressedSize
}

// DataOffset returns the offset of this entry's first data byte, i.e.
// where a reader would seek to read its content directly.
func (e *Entry) DataOffset() int64 {
	return e.HeaderOffset + e.HeaderSize()
}

// DirectoryEntrySize returns the byte length of this entry's central
// directory record, including the name.
func (e *Entry) DirectoryEntrySize() int64 {
	return 46 + int64(len(e.Name))
}

func checkUint32(field string, v int64) error {
	if v < 0 || v > 0xFFFFFFFF {
		return &apperr.RangeError{Field: field, Value: v}
	}
	return nil
}

func checkUint16(field string, v int) error {
	if v < 0 || v > 0xFFFF {
		return &apperr.RangeError{Field: field, Value: int64(v)}
	}
	return nil
}

// WriteLocalHeader writes this entry's local file header (30 bytes plus
// name) to w.
func (e *Entry) WriteLocalHeader(w Writer) error {
	if err := checkUint16("name length", len(e.Name)); err != nil {
		return err
	}
	if err := checkUint32("crc32", int64(e.CRC32)); err != nil {
		return err
	}
	if err := checkUint32("compressed size", e.CompressedSize); err != nil {
		return err
	}
	if err := checkUint32("uncompressed size", e.UncompressedSize); err != nil {
		return err
	}
	var buf [30]byte
	binary.LittleEndian.PutUint32(buf[0:4], localFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], FileExtractVersion)
	binary.LittleEndian.PutUint16(buf[6:8], 0) // flags
	binary.LittleEndian.PutUint16(buf[8:10], uint16(e.Method))
	binary.LittleEndian.PutUint16(buf[10:12], FileTime)
	binary.LittleEndian.PutUint16(buf[12:14], FileDate)
	binary.LittleEndian.PutUint32(buf[14:18], e.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], uint32(e.CompressedSize))
	binary.LittleEndian.PutUint32(buf[22:26], uint32(e.UncompressedSize))
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(e.Name)))
	binary.LittleEndian.PutUint16(buf[28:30], 0) // extra field length
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte(e.Name))
	return err
}

// WriteDirectoryEntry writes this entry's central directory record (46
// bytes plus name) to w.
func (e *Entry) WriteDirectoryEntry(w Writer) error {
	if err := checkUint32("header offset", e.HeaderOffset); err != nil {
		return err
	}
	var buf [46]byte
	binary.LittleEndian.PutUint32(buf[0:4], centralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], ArchiverVersion)
	binary.LittleEndian.PutUint16(buf[6:8], FileExtractVersion)
	binary.LittleEndian.PutUint16(buf[8:10], 0) // flags
	binary.LittleEndian.PutUint16(buf[10:12], uint16(e.Method))
	binary.LittleEndian.PutUint16(buf[12:14], FileTime)
	binary.LittleEndian.PutUint16(buf[14:16], FileDate)
	binary.LittleEndian.PutUint32(buf[16:20], e.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(e.CompressedSize))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(e.UncompressedSize))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(e.Name)))
	binary.LittleEndian.PutUint16(buf[30:32], 0) // extra field length
	binary.LittleEndian.PutUint16(buf[32:34], 0) // comment length
	binary.LittleEndian.PutUint16(buf[34:36], 0) // disk number start
	binary.LittleEndian.PutUint16(buf[36:38], 0) // internal attributes
	binary.LittleEndian.PutUint32(buf[38:42], 0) // external attributes
	binary.LittleEndian.PutUint32(buf[42:46], uint32(e.HeaderOffset))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte(e.Name))
	return err
}

// Writer is the subset of io.Writer the entry encoders need. Defined
// locally so this package does not need to import io just for the
// interface name.
type Writer interface {
	Write(p []byte) (int, error)
}
