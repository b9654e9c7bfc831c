package appx

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/sassoftware/appxbuild/internal/zipwriter"
)

// SubstituteBundleOffsets replaces every "<archiveName>-offset" token in
// manifestText with the decimal data offset (not the header offset) of
// the correspondingly named entry, matching the original packager's
// _ManifestContentsAfterPopulatingOffsets. AppxBundleManifest.xml
// authors write these tokens as placeholders for the "Offset" attribute
// values that cannot be known until the containing package's other
// entries have been laid out.
//
// If an archive name is itself a prefix of another archive name plus
// "-offset" (e.g. "a.appx" and "a.appx-offset.appx" both present), the
// substitution can collide; this is undefined behavior inherited
// unchanged from the original tool, not specially handled here.
func SubstituteBundleOffsets(manifestText string, entries []*zipwriter.Entry, originalNames map[string]string) string {
	for _, entry := range entries {
		name := originalNames[entry.Name]
		if name == "" {
			name = entry.Name
		}
		token := name + "-offset"
		offset := strconv.FormatInt(entry.DataOffset(), 10)
		manifestText = strings.ReplaceAll(manifestText, token, offset)
	}
	return manifestText
}

// ValidateManifestXML parses manifestText as XML to catch a malformed
// bundle manifest before it is baked into the archive. It does not
// perform the token substitution itself — that is a plain string
// operation, not a tree edit — but etree gives a clear parse error
// pointing at the offending manifest rather than a generic "invalid XML"
// from a downstream consumer.
func ValidateManifestXML(manifestText string) error {
	doc := etree.NewDocument()
	return doc.ReadFromString(manifestText)
}
