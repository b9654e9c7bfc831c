package mapping

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sassoftware/appxbuild/internal/apperr"
)

// WalkDirectory resolves a bare positional argument into archive
// entries, matching the original's GetArchiveFileList: a directory
// contributes every file beneath it (recursively, without following
// symlinks — physical traversal, matching FTS_PHYSICAL) named by its
// path relative to that directory; a single file contributes just
// itself, named by its base name, at the package root.
func WalkDirectory(root string) (Map, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, apperr.IoError{Path: root, Err: err}
	}
	result := Map{}
	if !info.IsDir() {
		if err := checkRegularOrSymlink(root, info); err != nil {
			return nil, err
		}
		result[filepath.Base(root)] = root
		return result, nil
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return apperr.IoError{Path: path, Err: err}
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return apperr.IoError{Path: path, Err: err}
		}
		if err := checkRegularOrSymlink(path, info); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return apperr.IoError{Path: path, Err: err}
		}
		result[filepath.ToSlash(rel)] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkRegularOrSymlink rejects any filesystem object that is not a
// regular file or a symlink resolving to one: device nodes, sockets,
// named pipes, and unresolvable symlinks are UnsupportedInput.
func checkRegularOrSymlink(path string, info fs.FileInfo) error {
	mode := info.Mode()
	if mode.IsRegular() {
		return nil
	}
	if mode&fs.ModeSymlink != 0 {
		target, err := os.Stat(path)
		if err != nil {
			return apperr.UnsupportedInput{Path: path, Kind: "unresolvable symlink"}
		}
		if !target.Mode().IsRegular() {
			return apperr.UnsupportedInput{Path: path, Kind: "symlink to " + target.Mode().String()}
		}
		return nil
	}
	return apperr.UnsupportedInput{Path: path, Kind: mode.String()}
}
