package pipeline

import (
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// rawZip writes entries with arbitrary names, including hostile ones that
// archive.Pack would never produce.
type rawZip struct {
	t  *testing.T
	f  *os.File
	zw *zip.Writer
}

func newRawZip(t *testing.T, path string) *rawZip {
	f, err := os.Create(path)
	require.NoError(t, err)
	return &rawZip{t: t, f: f, zw: zip.NewWriter(f)}
}

func (z *rawZip) add(name, content string) {
	w, err := z.zw.Create(name)
	require.NoError(z.t, err)
	_, err = w.Write([]byte(content))
	require.NoError(z.t, err)
}

func (z *rawZip) close() {
	require.NoError(z.t, z.zw.Close())
	require.NoError(z.t, z.f.Close())
}
