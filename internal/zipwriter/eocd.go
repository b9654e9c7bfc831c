package zipwriter

import "encoding/binary"

const (
	zip64EndSignature     = 0x06064B50
	zip64LocatorSignature = 0x07064B50
	eocdSignature         = 0x06054B50
)

// WriteEndOfDirectory writes the ZIP64 end-of-central-directory record,
// the ZIP64 locator, and the classic end-of-central-directory record —
// in that order, always, regardless of whether the entry/size counts
// would fit in the non-ZIP64 fields. This unconditional ZIP64 use
// matches the original packager (APPX consumers require it) rather than
// falling back to the classic-only records archive/zip.Writer would
// choose for a small archive.
//
// directoryOffset is the offset (from the start of the archive) where
// the central directory begins; entries is the full set of directory
// entries already written or about to be written there.
func WriteEndOfDirectory(w Writer, directoryOffset int64, entries []*Entry) error {
	var dirSize, recordsSize int64
	for _, e := range entries {
		dirSize += e.DirectoryEntrySize()
		recordsSize += e.RecordSize()
	}
	n := int64(len(entries))

	var zip64End [56]byte
	binary.LittleEndian.PutUint32(zip64End[0:4], zip64EndSignature)
	binary.LittleEndian.PutUint64(zip64End[4:12], 56-12) // size of record after this field
	binary.LittleEndian.PutUint16(zip64End[12:14], ArchiverVersion)
	binary.LittleEndian.PutUint16(zip64End[14:16], ArchiveExtractVersion)
	binary.LittleEndian.PutUint32(zip64End[16:20], 0) // disk number
	binary.LittleEndian.PutUint32(zip64End[20:24], 0) // disk with directory start
	binary.LittleEndian.PutUint64(zip64End[24:32], uint64(n))
	binary.LittleEndian.PutUint64(zip64End[32:40], uint64(n))
	binary.LittleEndian.PutUint64(zip64End[40:48], uint64(dirSize))
	binary.LittleEndian.PutUint64(zip64End[48:56], uint64(recordsSize))
	if _, err := w.Write(zip64End[:]); err != nil {
		return err
	}

	// The zip64 end record itself lands after the central directory
	// entries, not at their start.
	zip64EndOffset := directoryOffset + dirSize

	var locator [20]byte
	binary.LittleEndian.PutUint32(locator[0:4], zip64LocatorSignature)
	binary.LittleEndian.PutUint32(locator[4:8], 0) // disk with zip64 end record
	binary.LittleEndian.PutUint64(locator[8:16], uint64(zip64EndOffset))
	binary.LittleEndian.PutUint32(locator[16:20], 1) // total number of disks
	if _, err := w.Write(locator[:]); err != nil {
		return err
	}

	var eocd [22]byte
	binary.LittleEndian.PutUint32(eocd[0:4], eocdSignature)
	binary.LittleEndian.PutUint16(eocd[4:6], 0)          // disk number
	binary.LittleEndian.PutUint16(eocd[6:8], 0)           // disk with directory start
	binary.LittleEndian.PutUint32(eocd[8:12], 0xFFFFFFFF) // entries on this disk and entries total (see zip64 record)
	binary.LittleEndian.PutUint32(eocd[12:16], 0xFFFFFFFF) // directory size (see zip64 record)
	binary.LittleEndian.PutUint32(eocd[16:20], 0xFFFFFFFF) // directory start offset (see zip64 record)
	binary.LittleEndian.PutUint16(eocd[20:22], 0)          // comment length
	_, err := w.Write(eocd[:])
	return err
}
