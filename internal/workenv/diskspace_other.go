// SPDX-License-Identifier: Apache-2.0
//go:build !unix && !windows

package workenv

import "errors"

func availableDiskSpace(string) (int64, error) {
	return 0, errors.New("disk space query not supported on this platform")
}
