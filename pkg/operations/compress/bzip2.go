package compress

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/provide-io/flavor/go/pipeline/pkg/operations"
)

func init() {
	operations.Register(NewBzip2Operation())
}

// Bzip2Operation implements BZIP2 compression
type Bzip2Operation struct {
	operations.BaseOperation
}

// NewBzip2Operation creates a new BZIP2 operation
func NewBzip2Operation() *Bzip2Operation {
	return &Bzip2Operation{
		BaseOperation: operations.BaseOperation{
			OpID:   operations.OP_BZIP2,
			OpName: "BZIP2",
		},
	}
}

// ApplyStream compresses a stream using BZIP2
func (o *Bzip2Operation) ApplyStream(input io.Reader, output io.Writer) error {
	bw, err := bzip2.NewWriter(output, &bzip2.WriterConfig{Level: 9})
	if err != nil {
		return fmt.Errorf("creating bzip2 writer: %w", err)
	}
	if _, err := io.Copy(bw, input); err != nil {
		bw.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	return bw.Close()
}

// NewReader returns a BZIP2 decompressing reader
func (o *Bzip2Operation) NewReader(input io.Reader) (io.ReadCloser, error) {
	br, err := bzip2.NewReader(input, &bzip2.ReaderConfig{})
	if err != nil {
		return nil, fmt.Errorf("creating bzip2 reader: %w", err)
	}
	return br, nil
}

// ReverseStream decompresses a BZIP2 stream
func (o *Bzip2Operation) ReverseStream(input io.Reader, output io.Writer) error {
	return operations.ReverseWith(o.NewReader, input, output)
}
