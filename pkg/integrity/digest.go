// SPDX-License-Identifier: Apache-2.0
// Package integrity computes and compares SHA-256 content digests.
//
// Digests are rendered as bare lowercase hex (64 characters). The
// "sha256:<hex>" form used by OCI tooling is accepted on input and
// normalised away.
package integrity

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

const (
	// ChunkSize is the fixed read size used when streaming files.
	ChunkSize = 64 * 1024

	// HexLength is the length of a SHA-256 digest in hex.
	HexLength = 64
)

// Algorithm is the only digest algorithm the pipeline records.
const Algorithm = digest.SHA256

// Digest streams the file at path and returns its hex digest. Memory use is
// bounded by ChunkSize regardless of file size.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", perrors.IO("open", path, err)
	}
	defer f.Close()

	hex, err := DigestReader(f)
	if err != nil {
		return "", perrors.IO("read", path, err)
	}
	return hex, nil
}

// DigestReader returns the hex digest of everything read from r.
func DigestReader(r io.Reader) (string, error) {
	digester := Algorithm.Digester()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(digester.Hash(), onlyReader{r}, buf); err != nil {
		return "", err
	}
	return digester.Digest().Encoded(), nil
}

// Verify reports whether the digest of path equals expected. The comparison
// is an exact, case-sensitive match on the hex text.
func Verify(path, expected string) (bool, error) {
	actual, err := Digest(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// ValidHex reports whether s is a well formed lowercase SHA-256 hex digest.
func ValidHex(s string) bool {
	return Algorithm.Validate(s) == nil
}

// Normalize accepts "sha256:<hex>" or bare hex and returns the bare hex
// digest, rejecting other algorithms, upper case and wrong lengths.
func Normalize(s string) (string, error) {
	if strings.Contains(s, ":") {
		d, err := digest.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid digest %q: %w", s, err)
		}
		if d.Algorithm() != Algorithm {
			return "", fmt.Errorf("unsupported digest algorithm %q", d.Algorithm())
		}
		return d.Encoded(), nil
	}
	if err := Algorithm.Validate(s); err != nil {
		return "", fmt.Errorf("invalid sha256 digest %q: %w", s, err)
	}
	return s, nil
}

// onlyReader hides WriterTo so io.CopyBuffer really uses the fixed buffer.
type onlyReader struct {
	io.Reader
}
