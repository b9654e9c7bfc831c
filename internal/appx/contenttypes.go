package appx

import (
	"encoding/xml"
	"path"
	"sort"
)

const octetStreamType = "application/octet-stream"

var defaultExtensions = map[string]string{
	"dll":  "application/x-msdownload",
	"exe":  "application/x-msdownload",
	"png":  "image/png",
	"appx": "application/vnd.ms-appx",
}

var fixedOverrides = map[string]string{
	"/" + BlockMapName:      "application/vnd.ms-appx.blockmap+xml",
	"/" + SignatureName:     "application/vnd.ms-appx.signature",
	"/" + CodeIntegrityName: "application/vnd.ms-pkiseccat",
}

// ContentTypes accumulates the extension-keyed defaults and part-keyed
// overrides that make up [Content_Types].xml, grounded on the original
// packager's WriteContentTypesZIPFileEntry: one Default entry per
// distinct file extension seen (first occurrence wins; extensions are
// compared verbatim, so ones differing only in case each get their own
// Default entry, matching the original), and a fixed set of
// Override entries for the parts that are not named by extension.
type ContentTypes struct {
	isBundle bool
	byExt    map[string]string
	byPart   map[string]string
}

// NewContentTypes returns a ContentTypes set seeded with the fixed
// overrides for AppxBlockMap.xml, AppxSignature.p7x and
// AppxMetadata/CodeIntegrity.cat. The original packager writes these
// three unconditionally, whether or not the archive actually ends up
// with a signature or a code-integrity catalog. isBundle selects
// whether the "xml" extension defaults to the package manifest content
// type or the bundle manifest content type, and whether the "appx"
// extension gets the APPX package content type (bundles only) or
// application/octet-stream.
func NewContentTypes(isBundle bool) *ContentTypes {
	xmlType := "application/vnd.ms-appx.manifest+xml"
	if isBundle {
		xmlType = "application/vnd.ms-appx.bundlemanifest+xml"
	}
	byExt := map[string]string{"xml": xmlType}
	byPart := make(map[string]string, len(fixedOverrides))
	for part, ctype := range fixedOverrides {
		byPart[part] = ctype
	}
	return &ContentTypes{
		isBundle: isBundle,
		byExt:    byExt,
		byPart:   byPart,
	}
}

// Add records the content type for one archive entry, by its sanitized
// name. Bundled .appx payloads are handled separately by the block map
// (they are excluded from it, not from content types) and by the caller
// skipping AppxBundleManifest.xml, which gets the "xml" default like any
// other manifest.
func (c *ContentTypes) Add(sanitizedName string) {
	if ctype, ok := fixedOverrides["/"+sanitizedName]; ok {
		c.byPart["/"+sanitizedName] = ctype
		return
	}
	base := path.Base(sanitizedName)
	dot := lastIndexByte(base, '.')
	if dot < 0 || dot == len(base)-1 {
		c.byPart["/"+sanitizedName] = octetStreamType
		return
	}
	ext := base[dot+1:]
	if _, known := c.byExt[ext]; !known {
		ctype, ok := defaultExtensions[ext]
		if !ok || (ext == "appx" && !c.isBundle) {
			ctype = octetStreamType
		}
		c.byExt[ext] = ctype
	}
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

type xmlContentTypes struct {
	XMLName  xml.Name              `xml:"http://schemas.openxmlformats.org/package/2006/content-types Types"`
	Default  []contentTypeDefault  `xml:"Default"`
	Override []contentTypeOverride `xml:"Override"`
}

type contentTypeDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type contentTypeOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// Marshal renders [Content_Types].xml with Default entries sorted by
// extension and Override entries sorted by part name, for deterministic
// output.
func (c *ContentTypes) Marshal() ([]byte, error) {
	var xct xmlContentTypes
	exts := make([]string, 0, len(c.byExt))
	for ext := range c.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		xct.Default = append(xct.Default, contentTypeDefault{Extension: ext, ContentType: c.byExt[ext]})
	}
	parts := make([]string, 0, len(c.byPart))
	for part := range c.byPart {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	for _, part := range parts {
		xct.Override = append(xct.Override, contentTypeOverride{PartName: part, ContentType: c.byPart[part]})
	}
	return marshalXML(xct)
}
