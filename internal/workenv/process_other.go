// SPDX-License-Identifier: Apache-2.0
//go:build !unix

package workenv

import "os"

// IsProcessRunning reports whether pid exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
