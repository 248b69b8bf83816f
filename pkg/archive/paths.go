// SPDX-License-Identifier: Apache-2.0
package archive

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

// CleanEntryName validates an archive entry name and returns it in clean,
// slash-separated form. Names that are absolute, carry a volume, or contain
// a ".." segment are rejected with ErrPathTraversal.
func CleanEntryName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty entry name", perrors.ErrPathTraversal)
	}
	slashed := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.VolumeName(name) != "" || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: absolute entry name", perrors.ErrPathTraversal)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: parent directory segment", perrors.ErrPathTraversal)
		}
	}
	return path.Clean(slashed), nil
}

// SafeJoin joins an already validated entry name onto root and checks that
// the result is still inside root.
func SafeJoin(root, name string) (string, error) {
	clean, err := CleanEntryName(name)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s resolves outside %s", perrors.ErrPathTraversal, name, root)
	}
	return target, nil
}

func hasDriveLetter(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}
