// Package input acquires complete STDF byte buffers: glob discovery
// plus transparent gzip and zstd decompression. Compression is sniffed
// from the leading magic bytes, not the filename, so renamed files
// still load.
package input

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Discover expands glob patterns into a sorted, de-duplicated file list.
func Discover(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
		}
		if matches == nil {
			// A non-glob argument names a file that must exist.
			if _, statErr := os.Stat(pattern); statErr != nil {
				return nil, fmt.Errorf("input %q: %w", pattern, statErr)
			}
			matches = []string{pattern}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads one file fully into memory, decompressing gzip or
// zstd containers transparently.
func ReadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data, err := Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Decompress unwraps a gzip or zstd container; plain data passes
// through unchanged.
func Decompress(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, gzipMagic):
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing gzip stream: %w", err)
		}
		return data, nil
	case bytes.HasPrefix(raw, zstdMagic):
		r, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer r.Close()
		data, err := io.ReadAll(r.IOReadCloser())
		if err != nil {
			return nil, fmt.Errorf("decompressing zstd stream: %w", err)
		}
		return data, nil
	default:
		return raw, nil
	}
}

// BaseName strips the directory and the compression/format suffixes
// from a path, matching how output files are named after inputs.
func BaseName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".gz", ".zst", ".stdf", ".std"} {
		if filepath.Ext(name) == ext {
			name = name[:len(name)-len(ext)]
		}
	}
	return name
}
