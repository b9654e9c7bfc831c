// Package mapping resolves a build's inputs — mapping files, bare
// directories, bare files, and archiveName=localPath arguments — into a
// single archive-name-to-local-path table, grounded on
// original_source/Sources/main.cpp's GetArchiveFileListFromMappingFile
// and GetArchiveFileList.
package mapping

import (
	"bufio"
	"io"
	"strings"

	"github.com/sassoftware/appxbuild/internal/apperr"
)

// Map is an archive name to local filesystem path table. Later entries
// for the same archive name overwrite earlier ones, matching the
// original's use of an ordinary hash map insertion.
type Map map[string]string

// Merge copies every entry of other into m, overwriting existing keys.
func (m Map) Merge(other Map) {
	for k, v := range other {
		m[k] = v
	}
}

// ParseMappingFile reads the "[Files]" mapping grammar from r. Every
// non-blank line after the "[Files]" header must have the exact form
// `"localPath" "archiveName"`; blank lines (after trimming leading and
// trailing spaces/tabs) are skipped. path is used only to annotate
// errors.
func ParseMappingFile(r io.Reader, path string) (Map, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := Map{}
	sawHeader := false
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.Trim(scanner.Text(), " \t")
		if line == "" {
			continue
		}
		if !sawHeader {
			if line != "[Files]" {
				return nil, apperr.MalformedMappingFile{Path: path, Line: lineNumber, Text: line}
			}
			sawHeader = true
			continue
		}
		localPath, archiveName, ok := parseMappingLine(line)
		if !ok {
			return nil, apperr.MalformedMappingFile{Path: path, Line: lineNumber, Text: line}
		}
		result[archiveName] = localPath
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.IoError{Path: path, Err: err}
	}
	return result, nil
}

// parseMappingLine parses `"localPath" "archiveName"` with no support
// for escaped quotes, matching the original's deliberately strict
// parser.
func parseMappingLine(line string) (localPath, archiveName string, ok bool) {
	if len(line) == 0 || line[0] != '"' {
		return "", "", false
	}
	quote2 := strings.IndexByte(line[1:], '"')
	if quote2 < 0 {
		return "", "", false
	}
	quote2 += 1
	if quote2 == 1 {
		return "", "", false // empty local path
	}
	localPath = line[1:quote2]

	rest := line[quote2+1:]
	trimmed := strings.TrimLeft(rest, " \t")
	skipped := len(rest) - len(trimmed)
	if trimmed == "" || trimmed[0] != '"' {
		return "", "", false
	}
	quote3 := quote2 + 1 + skipped
	quote4Rel := strings.IndexByte(line[quote3+1:], '"')
	if quote4Rel < 0 {
		return "", "", false
	}
	quote4 := quote3 + 1 + quote4Rel
	if quote4 == quote3+1 {
		return "", "", false // empty archive name
	}
	if quote4 != len(line)-1 {
		return "", "", false // garbage after the fourth quote
	}
	archiveName = line[quote3+1 : quote4]
	return localPath, archiveName, true
}

// ParseArg splits a positional CLI argument of the form
// "archiveName=localPath" into its two halves. ok is false when arg has
// no '=', meaning it names a bare file or directory instead.
func ParseArg(arg string) (archiveName, localPath string, ok bool) {
	i := strings.IndexByte(arg, '=')
	if i < 0 {
		return "", "", false
	}
	return arg[:i], arg[i+1:], true
}
