// Package fileutil locates MIDI files and SoundFonts whose names may differ
// in case from what the user typed.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no file matches.
var ErrNotFound = errors.New("file not found")

// FindFileCaseInsensitive searches dir for a regular file named filename,
// ignoring case, and returns its actual path.
//
// Example:
//
//	path, err := FindFileCaseInsensitive("/path/to/dir", "Song.MID")
//	// Will find "song.mid", "SONG.MID", "Song.mid", etc.
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	if name, ok := match(entries, filename); ok {
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive for an fs.FS. The
// returned path uses forward slashes.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	if name, ok := match(entries, filename); ok {
		if dir == "." || dir == "" {
			return name, nil
		}
		return dir + "/" + name, nil
	}
	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

func match(entries []fs.DirEntry, filename string) (string, bool) {
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return entry.Name(), true
		}
	}
	return "", false
}

// Resolve returns path unchanged when it exists and otherwise looks for its
// base name case-insensitively in its directory.
func Resolve(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, nil
	}
	return FindFileCaseInsensitive(filepath.Dir(path), filepath.Base(path))
}

// Search resolves name in each directory in turn and returns the first hit.
// An absolute name is only resolved as is.
func Search(name string, dirs ...string) (string, error) {
	if filepath.IsAbs(name) {
		return Resolve(name)
	}
	for _, dir := range dirs {
		if path, err := Resolve(filepath.Join(dir, name)); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
