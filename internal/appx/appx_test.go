package appx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/appxbuild/internal/zipwriter"
)

func TestContentTypesDefaultsAndOverrides(t *testing.T) {
	ct := NewContentTypes(false)
	ct.Add("AppxManifest.xml")
	ct.Add("Assets/Logo.png")
	ct.Add(BlockMapName)
	ct.Add(SignatureName)
	blob, err := ct.Marshal()
	require.NoError(t, err)
	s := string(blob)
	assert.Contains(t, s, `Extension="xml" ContentType="application/vnd.ms-appx.manifest+xml"`)
	assert.Contains(t, s, `Extension="png" ContentType="image/png"`)
	assert.Contains(t, s, `PartName="/AppxBlockMap.xml" ContentType="application/vnd.ms-appx.blockmap+xml"`)
	assert.Contains(t, s, `PartName="/AppxSignature.p7x" ContentType="application/vnd.ms-appx.signature"`)
}

func TestContentTypesDuplicateExtensionCaseSensitive(t *testing.T) {
	ct := NewContentTypes(false)
	ct.Add("readme.TXT")
	ct.Add("other.txt")
	blob, err := ct.Marshal()
	require.NoError(t, err)
	s := string(blob)
	assert.Contains(t, s, `Extension="TXT"`)
	assert.Contains(t, s, `Extension="txt"`)
}

func TestBlockMapExcludesReservedNames(t *testing.T) {
	bm := NewBlockMap(false)
	entry := &zipwriter.Entry{UncompressedSize: 10}
	bm.AddFile(BlockMapName, entry, nil)
	bm.AddFile(SignatureName, entry, nil)
	blob, err := bm.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "File Name=")
}

func TestBlockMapAddsRegularFile(t *testing.T) {
	bm := NewBlockMap(false)
	entry := &zipwriter.Entry{UncompressedSize: 5, HeaderOffset: 0}
	blocks := []zipwriter.Block{{SHA256: make([]byte, 32), CompressedSize: zipwriter.NotCompressed}}
	bm.AddFile("Assets/Logo.png", entry, blocks)
	blob, err := bm.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(blob), `Name="Assets\Logo.png"`)
}

func TestBlockMapBundleExcludesAppxPayloads(t *testing.T) {
	bm := NewBlockMap(true)
	entry := &zipwriter.Entry{UncompressedSize: 5}
	bm.AddFile("x64/app.appx", entry, []zipwriter.Block{{SHA256: make([]byte, 32)}})
	blob, err := bm.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "app.appx")
}

func TestSubstituteBundleOffsets(t *testing.T) {
	entries := []*zipwriter.Entry{
		{Name: "x64/app.appx", HeaderOffset: 100},
	}
	names := map[string]string{"x64/app.appx": "x64/app.appx"}
	manifest := `<Package Offset="x64/app.appx-offset"/>`
	out := SubstituteBundleOffsets(manifest, entries, names)
	want := entries[0].DataOffset()
	assert.Contains(t, out, `Offset="`+itoa(want)+`"`)
}

func TestValidateManifestXMLRejectsGarbage(t *testing.T) {
	assert.Error(t, ValidateManifestXML("<not valid"))
	assert.NoError(t, ValidateManifestXML(`<Bundle xmlns="x"><Identity/></Bundle>`))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
