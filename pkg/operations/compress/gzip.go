// Package compress registers the compression codecs used for toolchain
// archives: gzip and zstd from klauspost/compress, bzip2 from
// dsnet/compress and xz from ulikunitz/xz.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/provide-io/flavor/go/pipeline/pkg/operations"
)

func init() {
	operations.Register(NewGzipOperation())
}

// GzipOperation implements GZIP compression
type GzipOperation struct {
	operations.BaseOperation
}

// NewGzipOperation creates a new GZIP operation
func NewGzipOperation() *GzipOperation {
	return &GzipOperation{
		BaseOperation: operations.BaseOperation{
			OpID:   operations.OP_GZIP,
			OpName: "GZIP",
		},
	}
}

// ApplyStream compresses a stream using GZIP
func (o *GzipOperation) ApplyStream(input io.Reader, output io.Writer) error {
	gw := gzip.NewWriter(output)
	if _, err := io.Copy(gw, input); err != nil {
		gw.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	return gw.Close()
}

// NewReader returns a GZIP decompressing reader
func (o *GzipOperation) NewReader(input io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(input)
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	return gr, nil
}

// ReverseStream decompresses a GZIP stream
func (o *GzipOperation) ReverseStream(input io.Reader, output io.Writer) error {
	return operations.ReverseWith(o.NewReader, input, output)
}
