package compress

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/provide-io/flavor/go/pipeline/pkg/operations"
)

func init() {
	operations.Register(NewXzOperation())
}

// XzOperation implements XZ/LZMA2 compression
type XzOperation struct {
	operations.BaseOperation
}

// NewXzOperation creates a new XZ operation
func NewXzOperation() *XzOperation {
	return &XzOperation{
		BaseOperation: operations.BaseOperation{
			OpID:   operations.OP_XZ,
			OpName: "XZ",
		},
	}
}

// ApplyStream compresses a stream using XZ
func (o *XzOperation) ApplyStream(input io.Reader, output io.Writer) error {
	xw, err := xz.NewWriter(output)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}
	if _, err := io.Copy(xw, input); err != nil {
		xw.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	return xw.Close()
}

// NewReader returns an XZ decompressing reader. The xz reader holds no
// resources, so closing it is a no-op.
func (o *XzOperation) NewReader(input io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(input)
	if err != nil {
		return nil, fmt.Errorf("creating xz reader: %w", err)
	}
	return io.NopCloser(xr), nil
}

// ReverseStream decompresses an XZ stream
func (o *XzOperation) ReverseStream(input io.Reader, output io.Writer) error {
	return operations.ReverseWith(o.NewReader, input, output)
}
