// Package fs has small file system helpers used around the server.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// CopyRecursively copies the file or directory tree at from to to. Missing target
// directories are created; existing files are overwritten.
func CopyRecursively(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}

	switch {
	case info.Mode().IsRegular():
		return copyFile(from, to, info.Mode().Perm())
	case info.IsDir():
		if err := os.MkdirAll(to, info.Mode().Perm()|0o700); err != nil {
			return err
		}

		entries, err := os.ReadDir(from)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			name := entry.Name()
			if err := CopyRecursively(filepath.Join(from, name), filepath.Join(to, name)); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("fs: unsupported type of source for copying: %s", from)
	}
}

func copyFile(from, to string, perm os.FileMode) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}

	return dst.Close()
}

// ListDir returns the paths of the entries in dir, sorted by name.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	return paths, nil
}

// Sanitize turns s into something safe to use as a file name: lower case, whitespace
// replaced by "-", and anything that is neither an ASCII letter or digit nor "." or "_"
// replaced by "_".
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range strings.TrimSpace(s) {
		r = unicode.ToLower(r)

		switch {
		case r == '.' || r == '_':
		case unicode.IsSpace(r):
			r = '-'
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		default:
			r = '_'
		}

		b.WriteRune(r)
	}

	return b.String()
}
