package operations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    []uint8
		wantErr bool
	}{
		{in: "", want: []uint8{}},
		{in: "raw", want: []uint8{}},
		{in: "tar.gz", want: []uint8{OP_TAR, OP_GZIP}},
		{in: "TGZ", want: []uint8{OP_TAR, OP_GZIP}},
		{in: "tar.zst", want: []uint8{OP_TAR, OP_ZSTD}},
		{in: "tar|xz", want: []uint8{OP_TAR, OP_XZ}},
		{in: "tar|lz4", wantErr: true},
		{in: "rar", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "raw", Format(nil))
	require.Equal(t, "tar.gz", Format([]uint8{OP_TAR, OP_GZIP}))
	require.Equal(t, "zstd", Format([]uint8{OP_ZSTD}))
	require.Equal(t, "gzip|xz", Format([]uint8{OP_GZIP, OP_XZ}))
}

func TestChainForFilename(t *testing.T) {
	tests := map[string][]uint8{
		"go1.22.5.linux-amd64.tar.gz":  {OP_TAR, OP_GZIP},
		"/tmp/toolchain.TGZ":           {OP_TAR, OP_GZIP},
		"toolchain.tar.bz2":            {OP_TAR, OP_BZIP2},
		"toolchain.tar.xz":             {OP_TAR, OP_XZ},
		"toolchain.tar.zst":            {OP_TAR, OP_ZSTD},
		"toolchain.tar":                {OP_TAR},
		"go1.22.5.windows-amd64.zip":   {OP_ZIP},
	}
	for name, want := range tests {
		got, err := ChainForFilename(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := ChainForFilename("toolchain.gz")
	require.Error(t, err)
}

func TestOpenChainRejectsMisplacedBundle(t *testing.T) {
	_, err := OpenChain(strings.NewReader(""), []uint8{OP_GZIP, OP_TAR})
	require.Error(t, err)
}

func TestGetUnknown(t *testing.T) {
	_, err := Get(0x7f)
	require.ErrorContains(t, err, "UNKNOWN_7f")
}
