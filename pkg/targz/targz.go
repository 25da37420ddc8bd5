// Package targz reads gzip-compressed tar archives into memory.
package targz

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"path"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Bundle is the set of regular files read from an archive, keyed by their
// path after stripping and renaming.
type Bundle struct {
	Files map[string][]byte
}

// Names returns the file names in sorted order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.Files))
	for n := range b.Files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type LoadOptions struct {
	// StripComponents drops leading path components, like tar --strip-components.
	StripComponents int

	// Filter is called with the stripped path; false skips the file.
	Filter func(name string) bool

	// TransformName renames a file after stripping. Two files ending up with
	// the same name is an error.
	TransformName func(name string) string

	// MaxFileSize rejects any single file larger than this many bytes. Zero
	// means no limit.
	MaxFileSize int64
}

func Load(data []byte) (*Bundle, error) {
	return LoadWithOptions(data, LoadOptions{})
}

func LoadWithOptions(data []byte, opts LoadOptions) (*Bundle, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Errorf("opening gzip stream: %w", err)
	}
	defer gzr.Close()

	bundle := &Bundle{Files: make(map[string][]byte)}
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Errorf("reading tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		components := SplitPath(header.Name)
		if len(components) <= opts.StripComponents {
			continue
		}
		name := path.Join(components[opts.StripComponents:]...)

		if opts.Filter != nil && !opts.Filter(name) {
			continue
		}
		if opts.TransformName != nil {
			name = opts.TransformName(name)
		}
		if _, exists := bundle.Files[name]; exists {
			return nil, errors.Errorf("file collision: %s (from %s) already loaded", name, header.Name)
		}
		if opts.MaxFileSize > 0 && header.Size > opts.MaxFileSize {
			return nil, errors.Errorf("file %s is %d bytes, over the %d byte limit", header.Name, header.Size, opts.MaxFileSize)
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, errors.Errorf("reading %s: %w", header.Name, err)
		}
		bundle.Files[name] = buf.Bytes()
	}

	return bundle, nil
}

// SplitPath splits a slash-separated archive path into its components,
// ignoring empty and "." segments.
func SplitPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}
