package mapping

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/appxbuild/internal/apperr"
)

func TestParseMappingFileHappyPath(t *testing.T) {
	src := "[Files]\n" +
		"\"/tmp/a.exe\" \"app.exe\"\n" +
		"\n" +
		"  \"/tmp/b.dll\"   \"lib/b.dll\"  \n"
	m, err := ParseMappingFile(strings.NewReader(src), "map.txt")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.exe", m["app.exe"])
	assert.Equal(t, "/tmp/b.dll", m["lib/b.dll"])
}

func TestParseMappingFileMissingHeader(t *testing.T) {
	_, err := ParseMappingFile(strings.NewReader(`"a" "b"`), "map.txt")
	assert.Error(t, err)
}

func TestParseMappingFileGarbageAfterFourthQuote(t *testing.T) {
	src := "[Files]\n\"/tmp/a\" \"b\" trailing\n"
	_, err := ParseMappingFile(strings.NewReader(src), "map.txt")
	assert.Error(t, err)
}

func TestParseMappingFileEmptyLocalPath(t *testing.T) {
	src := "[Files]\n\"\" \"b\"\n"
	_, err := ParseMappingFile(strings.NewReader(src), "map.txt")
	assert.Error(t, err)
}

func TestParseMappingFileMissingSecondQuotedField(t *testing.T) {
	src := "[Files]\n\"/tmp/a\"\n"
	_, err := ParseMappingFile(strings.NewReader(src), "map.txt")
	assert.Error(t, err)
}

func TestParseArg(t *testing.T) {
	name, path, ok := ParseArg("app.exe=/tmp/a.exe")
	require.True(t, ok)
	assert.Equal(t, "app.exe", name)
	assert.Equal(t, "/tmp/a.exe", path)

	_, _, ok = ParseArg("/tmp/somedir")
	assert.False(t, ok)
}

func TestWalkDirectorySingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.exe")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	m, err := WalkDirectory(file)
	require.NoError(t, err)
	assert.Equal(t, file, m["app.exe"])
}

func TestWalkDirectoryRecursesRelativeNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AppxManifest.xml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Assets", "Logo.png"), []byte("x"), 0o644))

	m, err := WalkDirectory(dir)
	require.NoError(t, err)
	assert.Contains(t, m, "AppxManifest.xml")
	assert.Contains(t, m, "Assets/Logo.png")
}

func TestWalkDirectoryRejectsNonRegularFile(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "weird.sock")
	l, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer l.Close()

	_, err = WalkDirectory(dir)
	require.Error(t, err)
	assert.IsType(t, apperr.UnsupportedInput{}, err)
}

func TestWalkDirectoryRejectsUnresolvableSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), link))

	_, err := WalkDirectory(dir)
	require.Error(t, err)
	assert.IsType(t, apperr.UnsupportedInput{}, err)
}
