package image

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// supportedExtensions is the set of image extensions Scan picks up,
// lowercased and without the dot.
var supportedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tiff": {},
	"webp": {},
}

// File is an image discovered on disk.
type File struct {
	// Path is the path as found under the scanned directory.
	Path string

	// Name is the base name, used for the topic and properties.
	Name string

	// Ext is the lowercased extension without the dot.
	Ext string
}

// NewFile describes the file at path.
func NewFile(path string) File {
	return File{
		Path: path,
		Name: filepath.Base(path),
		Ext:  strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
	}
}

// IsSupported reports whether the extension (any case, with or without
// a leading dot) is a publishable image type.
func IsSupported(ext string) bool {
	_, ok := supportedExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

// Scan returns the regular files in dir whose extension is a supported
// image type, compared case-insensitively. Subdirectories are not
// descended into.
//
// A missing directory yields an empty result and ErrDirectoryNotFound;
// callers log it and treat the run as a no-op. Results are sorted by
// name so repeated runs publish in the same order.
func Scan(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []File{}, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && isNotDir(dir) {
			return []File{}, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
		}
		return []File{}, fmt.Errorf("reading image directory: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !isRegular(entry, path) {
			continue
		}
		f := NewFile(path)
		if !IsSupported(f.Ext) {
			continue
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// isRegular follows symlinks so linked images are published too.
func isRegular(entry fs.DirEntry, path string) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isNotDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
