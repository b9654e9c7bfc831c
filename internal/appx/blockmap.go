package appx

import (
	"encoding/base64"
	"encoding/xml"
	"strings"

	"github.com/sassoftware/appxbuild/internal/zipwriter"
)

const blockMapNamespace = "http://schemas.microsoft.com/appx/2010/blockmap"
const sha256HashMethod = "http://www.w3.org/2001/04/xmlenc#sha256"

// BlockMap accumulates the per-file block lists that make up
// AppxBlockMap.xml. Files named by noBlockMap, and — in bundles — any
// ".appx" payload, are excluded, matching the original packager's
// WriteAppxBlockMapZIPFileEntry.
type BlockMap struct {
	isBundle bool
	files    []blockMapFile
}

// NewBlockMap returns an empty BlockMap.
func NewBlockMap(isBundle bool) *BlockMap {
	return &BlockMap{isBundle: isBundle}
}

var noBlockMap = map[string]bool{
	ContentTypesName:  true,
	BlockMapName:      true,
	SignatureName:     true,
	CodeIntegrityName: true,
}

// AddFile records one entry's block list. name is the entry's original
// (pre-sanitization) archive name, used for the block map's own
// backslash-separated Name attribute.
func (b *BlockMap) AddFile(name string, entry *zipwriter.Entry, blocks []zipwriter.Block) {
	if noBlockMap[name] {
		return
	}
	if b.isBundle && strings.HasSuffix(name, ".appx") {
		return
	}
	bf := blockMapFile{
		Name:    strings.ReplaceAll(name, "/", "\\"),
		Size:    uint64(entry.UncompressedSize),
		LfhSize: entry.HeaderSize(),
	}
	for _, blk := range blocks {
		bmb := blockMapBlock{Hash: base64.StdEncoding.EncodeToString(blk.SHA256)}
		if blk.CompressedSize != zipwriter.NotCompressed {
			bmb.Size = uint64(blk.CompressedSize)
		}
		bf.Block = append(bf.Block, bmb)
	}
	b.files = append(b.files, bf)
}

type blockMapDoc struct {
	XMLName    xml.Name       `xml:"http://schemas.microsoft.com/appx/2010/blockmap BlockMap"`
	HashMethod string         `xml:"HashMethod,attr"`
	File       []blockMapFile `xml:"File"`
}

type blockMapFile struct {
	Name    string          `xml:"Name,attr"`
	Size    uint64          `xml:"Size,attr"`
	LfhSize int64           `xml:"LfhSize,attr"`
	Block   []blockMapBlock `xml:"Block"`
}

type blockMapBlock struct {
	Hash string `xml:"Hash,attr"`
	Size uint64 `xml:"Size,attr,omitempty"`
}

// Marshal renders AppxBlockMap.xml. Unlike [Content_Types].xml its
// standalone declaration is "no" and its file order is the order files
// were added, matching the original packager (block map order follows
// archive-write order, not a sorted order).
func (b *BlockMap) Marshal() ([]byte, error) {
	doc := blockMapDoc{HashMethod: sha256HashMethod, File: b.files}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	const hdr = "<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\"?>\r\n"
	out := make([]byte, len(hdr), len(hdr)+len(body))
	copy(out, hdr)
	return append(out, body...), nil
}
