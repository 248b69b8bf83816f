// SPDX-License-Identifier: Apache-2.0
//go:build unix

package workenv

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessRunning reports whether pid exists. Signal 0 probes without
// delivering anything; EPERM still means the process is alive.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
