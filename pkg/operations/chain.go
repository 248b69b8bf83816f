// SPDX-License-Identifier: Apache-2.0
package operations

import (
	"fmt"
	"io"
	"strings"
)

// Common operation chains, in apply order (bundle first).
var namedChains = map[string][]uint8{
	// Raw data
	"raw": {},

	// Single operations
	"gzip":  {OP_GZIP},
	"bzip2": {OP_BZIP2},
	"xz":    {OP_XZ},
	"zstd":  {OP_ZSTD},
	"tar":   {OP_TAR},
	"zip":   {OP_ZIP},

	// Common compound operations
	"tar.gz":  {OP_TAR, OP_GZIP},
	"tar.bz2": {OP_TAR, OP_BZIP2},
	"tar.xz":  {OP_TAR, OP_XZ},
	"tar.zst": {OP_TAR, OP_ZSTD},

	// Alternative names
	"tgz":  {OP_TAR, OP_GZIP},
	"tbz2": {OP_TAR, OP_BZIP2},
	"txz":  {OP_TAR, OP_XZ},
	"tzst": {OP_TAR, OP_ZSTD},
}

// Longest suffix first so ".tar.gz" wins over ".gz".
var suffixes = []string{
	".tar.bz2", ".tar.zst", ".tar.gz", ".tar.xz",
	".tbz2", ".tzst", ".tgz", ".txz", ".tar", ".zip",
}

var namedOperations = map[string]uint8{
	"TAR":   OP_TAR,
	"ZIP":   OP_ZIP,
	"GZIP":  OP_GZIP,
	"BZIP2": OP_BZIP2,
	"XZ":    OP_XZ,
	"ZSTD":  OP_ZSTD,
}

// Parse turns an operation string ("tar.gz", "tgz", "tar|zstd") into the
// operations it names, in apply order.
func Parse(opString string) ([]uint8, error) {
	opString = strings.ToLower(strings.TrimSpace(opString))
	if opString == "" {
		return []uint8{}, nil
	}
	if ops, ok := namedChains[opString]; ok {
		return append([]uint8{}, ops...), nil
	}

	if !strings.Contains(opString, "|") {
		return nil, fmt.Errorf("unknown operation string: %s", opString)
	}
	ops := []uint8{}
	for _, part := range strings.Split(opString, "|") {
		part = strings.TrimSpace(strings.ToUpper(part))
		if part == "" {
			continue
		}
		op, ok := namedOperations[part]
		if !ok {
			return nil, fmt.Errorf("unsupported operation: %s", part)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Format renders operations as the shortest known chain name, or as a
// pipe-separated list.
func Format(ops []uint8) string {
	if len(ops) == 0 {
		return "raw"
	}
	for _, name := range []string{"tar.gz", "tar.bz2", "tar.xz", "tar.zst", "tar", "zip", "gzip", "bzip2", "xz", "zstd"} {
		if equal(namedChains[name], ops) {
			return name
		}
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = strings.ToLower(GetName(op))
	}
	return strings.Join(names, "|")
}

// ChainForFilename detects the operations from a file or URL path suffix.
func ChainForFilename(name string) ([]uint8, error) {
	lower := strings.ToLower(name)
	for _, suffix := range suffixes {
		if strings.HasSuffix(lower, suffix) {
			return Parse(strings.TrimPrefix(suffix, "."))
		}
	}
	return nil, fmt.Errorf("cannot infer archive format from %q", name)
}

// OpenChain stacks the decoders needed to undo ops on input. A bundle
// operation may only appear first; it is left for the caller to unpack, so
// the returned reader yields the raw bundle stream.
func OpenChain(input io.Reader, ops []uint8) (io.ReadCloser, error) {
	var closers []io.Closer
	current := input

	for i := len(ops) - 1; i >= 0; i-- {
		id := ops[i]
		if IsBundle(id) {
			if i != 0 {
				closeAll(closers)
				return nil, fmt.Errorf("bundle operation %s must come first", GetName(id))
			}
			continue
		}
		op, err := Get(id)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		r, err := op.NewReader(current)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("opening %s: %w", op.Name(), err)
		}
		closers = append(closers, r)
		current = r
	}

	return &chainReader{Reader: current, closers: closers}, nil
}

type chainReader struct {
	io.Reader
	closers []io.Closer
}

func (c *chainReader) Close() error {
	return closeAll(c.closers)
}

// closeAll closes outermost first and returns the first error.
func closeAll(closers []io.Closer) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func equal(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
