package appxpack

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/sassoftware/appxbuild/internal/apperr"
	"github.com/sassoftware/appxbuild/internal/appx"
	"github.com/sassoftware/appxbuild/internal/sign"
	"github.com/sassoftware/appxbuild/internal/sink"
	"github.com/sassoftware/appxbuild/internal/zipwriter"
)

// bundleManifestSuffix is matched against archive names to find the
// bundle manifest among the input files, the same suffix comparison the
// original packager uses so a manifest nested under a subdirectory is
// still recognized.
const bundleManifestSuffix = "AppxBundleManifest.xml"

// InputFile is one payload entry to place in the archive.
type InputFile struct {
	ArchiveName string
	Open        func() (io.ReadCloser, error)
}

// Options controls how WriteAppx assembles the archive.
type Options struct {
	IsBundle         bool
	CompressionLevel int
	KeySource        sign.KeySource
}

// WriteAppx assembles an APPX or APPXBUNDLE into dst from files,
// following the original packager's WriteAppx: write and hash the
// payload, then the block map and content types, then simulate the
// central directory to compute AXCD, then sign (if requested) and
// finally write the real central directory and end-of-directory record.
func WriteAppx(dst io.Writer, files []InputFile, opts Options) error {
	var bundleManifest *InputFile
	var payload []InputFile
	for i := range files {
		f := files[i]
		if opts.IsBundle && len(f.ArchiveName) > len(bundleManifestSuffix) &&
			strings.HasSuffix(f.ArchiveName, bundleManifestSuffix) {
			bundleManifest = &f
			continue
		}
		payload = append(payload, f)
	}
	if opts.IsBundle && bundleManifest == nil {
		return apperr.MissingBundleManifest{}
	}
	// The caller assembles files from an unordered mapping (a map keyed by
	// archive name), so sort by archive name here to make the emitted
	// archive's entry order, and therefore its bytes, reproducible.
	sort.Slice(payload, func(i, j int) bool { return payload[i].ArchiveName < payload[j].ArchiveName })

	offset := &sink.Counter{}
	axpc := sink.NewSHA256()
	content := sink.NewFanout(dst, axpc, offset)

	var entries []*zipwriter.Entry
	var allBlocks [][]zipwriter.Block
	originalNames := map[string]string{}

	for _, f := range payload {
		rc, err := f.Open()
		if err != nil {
			return apperr.IoError{Path: f.ArchiveName, Err: err}
		}
		entry, blocks, err := zipwriter.WriteFileEntry(content, offset.Offset(), f.ArchiveName, rc, opts.CompressionLevel)
		rc.Close()
		if err != nil {
			return apperr.CompressionError{Name: f.ArchiveName, Err: err}
		}
		entries = append(entries, entry)
		allBlocks = append(allBlocks, blocks)
		originalNames[entry.Name] = f.ArchiveName
	}

	if opts.IsBundle {
		rc, err := bundleManifest.Open()
		if err != nil {
			return apperr.IoError{Path: bundleManifest.ArchiveName, Err: err}
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return apperr.IoError{Path: bundleManifest.ArchiveName, Err: err}
		}
		substituted := appx.SubstituteBundleOffsets(string(raw), entries, originalNames)
		if err := appx.ValidateManifestXML(substituted); err != nil {
			return apperr.MalformedMappingFile{Path: bundleManifest.ArchiveName, Text: err.Error()}
		}
		entry, blocks, err := zipwriter.WriteFileEntry(content, offset.Offset(), bundleManifest.ArchiveName, strings.NewReader(substituted), opts.CompressionLevel)
		if err != nil {
			return apperr.CompressionError{Name: bundleManifest.ArchiveName, Err: err}
		}
		entries = append(entries, entry)
		allBlocks = append(allBlocks, blocks)
		originalNames[entry.Name] = bundleManifest.ArchiveName
	}

	blockMap := appx.NewBlockMap(opts.IsBundle)
	for i, entry := range entries {
		blockMap.AddFile(originalNames[entry.Name], entry, allBlocks[i])
	}
	bmBytes, err := blockMap.Marshal()
	if err != nil {
		return err
	}
	bmEntry, bmBlocks, err := zipwriter.WriteFileEntry(content, offset.Offset(), appx.BlockMapName, bytes.NewReader(bmBytes), opts.CompressionLevel)
	if err != nil {
		return apperr.CompressionError{Name: appx.BlockMapName, Err: err}
	}
	entries = append(entries, bmEntry)
	allBlocks = append(allBlocks, bmBlocks)
	digestsAXBM := sha256Sum(bmBytes)

	contentTypes := appx.NewContentTypes(opts.IsBundle)
	for _, entry := range entries {
		contentTypes.Add(entry.Name)
	}
	ctBytes, err := contentTypes.Marshal()
	if err != nil {
		return err
	}
	ctEntry, ctBlocks, err := zipwriter.WriteFileEntry(content, offset.Offset(), appx.ContentTypesName, bytes.NewReader(ctBytes), opts.CompressionLevel)
	if err != nil {
		return apperr.CompressionError{Name: appx.ContentTypesName, Err: err}
	}
	entries = append(entries, ctEntry)
	allBlocks = append(allBlocks, ctBlocks)
	digestsAXCT := sha256Sum(ctBytes)

	digests := Digests{AXPC: axpc.Sum(), AXBM: digestsAXBM, AXCT: digestsAXCT}

	axcd := sink.NewSHA256()
	directoryOffset := offset.Offset()
	for _, entry := range entries {
		if err := entry.WriteDirectoryEntry(axcd); err != nil {
			return err
		}
	}
	if err := zipwriter.WriteEndOfDirectory(axcd, directoryOffset, entries); err != nil {
		return err
	}
	digests.AXCD = axcd.Sum()

	if opts.KeySource != nil {
		sigBytes, err := sign.BuildSignature(opts.KeySource, digests.Bytes())
		if err != nil {
			return err
		}
		sigEntry, _, err := zipwriter.WriteFileEntry(content, offset.Offset(), appx.SignatureName, bytes.NewReader(sigBytes), 9)
		if err != nil {
			return apperr.CompressionError{Name: appx.SignatureName, Err: err}
		}
		entries = append(entries, sigEntry)
	}

	for _, entry := range entries {
		if err := entry.WriteDirectoryEntry(dst); err != nil {
			return err
		}
	}
	return zipwriter.WriteEndOfDirectory(dst, offset.Offset(), entries)
}

func sha256Sum(data []byte) []byte {
	h := sink.NewSHA256()
	h.Write(data)
	return h.Sum()
}
