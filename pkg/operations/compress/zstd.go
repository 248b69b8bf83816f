package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/provide-io/flavor/go/pipeline/pkg/operations"
)

func init() {
	operations.Register(NewZstdOperation())
}

// ZstdOperation implements Zstandard compression
type ZstdOperation struct {
	operations.BaseOperation
}

// NewZstdOperation creates a new ZSTD operation
func NewZstdOperation() *ZstdOperation {
	return &ZstdOperation{
		BaseOperation: operations.BaseOperation{
			OpID:   operations.OP_ZSTD,
			OpName: "ZSTD",
		},
	}
}

// ApplyStream compresses a stream using ZSTD
func (o *ZstdOperation) ApplyStream(input io.Reader, output io.Writer) error {
	zw, err := zstd.NewWriter(output)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := io.Copy(zw, input); err != nil {
		zw.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	return zw.Close()
}

// NewReader returns a ZSTD decompressing reader
func (o *ZstdOperation) NewReader(input io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(input, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	return zr.IOReadCloser(), nil
}

// ReverseStream decompresses a ZSTD stream
func (o *ZstdOperation) ReverseStream(input io.Reader, output io.Writer) error {
	return operations.ReverseWith(o.NewReader, input, output)
}
