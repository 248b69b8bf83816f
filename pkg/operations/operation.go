// SPDX-License-Identifier: Apache-2.0
// Package operations is the registry of streaming codecs used to unpack
// toolchain archives. Codec packages register themselves from init, so
// importing them for side effects (see the toolchain package) is enough.
package operations

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Operation identifiers, stable across releases.
const (
	// No operation - raw data
	OP_NONE = 0x00

	// Bundle operations (0x01-0x0F)
	OP_TAR = 0x01 // POSIX TAR archive
	OP_ZIP = 0x02 // ZIP archive

	// Compression operations (0x10-0x2F)
	OP_GZIP  = 0x10 // GZIP compression
	OP_BZIP2 = 0x13 // BZIP2 compression
	OP_XZ    = 0x16 // XZ/LZMA2 compression
	OP_ZSTD  = 0x1B // Zstandard compression
)

// Operation is a reversible stream transformation.
type Operation interface {
	// ID returns the operation identifier (e.g., OP_GZIP)
	ID() uint8

	// Name returns the human-readable name
	Name() string

	// ApplyStream applies the operation, e.g. compresses input into output.
	ApplyStream(input io.Reader, output io.Writer) error

	// ReverseStream undoes the operation, e.g. decompresses input into output.
	ReverseStream(input io.Reader, output io.Writer) error

	// NewReader returns a reader yielding the reversed stream.
	NewReader(input io.Reader) (io.ReadCloser, error)
}

// BaseOperation provides ID and Name for codec implementations.
type BaseOperation struct {
	OpID   uint8
	OpName string
}

func (o *BaseOperation) ID() uint8 {
	return o.OpID
}

func (o *BaseOperation) Name() string {
	return o.OpName
}

// ReverseWith implements ReverseStream in terms of a NewReader function.
func ReverseWith(newReader func(io.Reader) (io.ReadCloser, error), input io.Reader, output io.Writer) error {
	r, err := newReader(input)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, r); err != nil {
		r.Close()
		return fmt.Errorf("decompressing stream: %w", err)
	}
	return r.Close()
}

var (
	registryMu sync.RWMutex
	registry   = make(map[uint8]Operation)
)

// Register registers an operation implementation
func Register(op Operation) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[op.ID()] = op
}

// Get retrieves an operation by ID
func Get(id uint8) (Operation, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	op, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown operation: 0x%02x (%s)", id, GetName(id))
	}
	return op, nil
}

// Registered returns the ids of all registered operations in ascending order.
func Registered() []uint8 {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]uint8, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetName returns the name of an operation by ID
func GetName(id uint8) string {
	switch id {
	case OP_NONE:
		return "NONE"
	case OP_TAR:
		return "TAR"
	case OP_ZIP:
		return "ZIP"
	case OP_GZIP:
		return "GZIP"
	case OP_BZIP2:
		return "BZIP2"
	case OP_XZ:
		return "XZ"
	case OP_ZSTD:
		return "ZSTD"
	default:
		return fmt.Sprintf("UNKNOWN_%02x", id)
	}
}

// IsBundle reports whether id names a container format rather than a codec.
func IsBundle(id uint8) bool {
	return id >= OP_TAR && id <= 0x0F
}
