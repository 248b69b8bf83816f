// SPDX-License-Identifier: Apache-2.0
package workenv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

// Lock is an advisory pid-file lock on a working directory.
type Lock struct {
	path   string
	pid    int
	logger hclog.Logger
}

// Acquire takes the run lock for l. A lock whose pid is no longer running is
// reclaimed; one held by a live process yields errors.ErrLocked.
func Acquire(l Layout, logger hclog.Logger) (*Lock, error) {
	if err := l.Prepare(); err != nil {
		return nil, perrors.IO("mkdir", l.Root, err)
	}
	lockPath := l.LockFile()
	pid := os.Getpid()

	if data, err := os.ReadFile(lockPath); err == nil {
		holder, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		switch {
		case perr != nil:
			logger.Info("🧹 Removing invalid lock file (couldn't parse PID)", "path", lockPath)
			os.Remove(lockPath)
		case holder != pid && IsProcessRunning(holder):
			logger.Debug("🔒 Lock held by active process", "pid", holder)
			return nil, fmt.Errorf("%w: pid %d holds %s", perrors.ErrLocked, holder, lockPath)
		default:
			logger.Info("🧹 Removing stale lock from dead process", "pid", holder)
			os.Remove(lockPath)
		}
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s was taken concurrently", perrors.ErrLocked, lockPath)
		}
		return nil, perrors.IO("create", lockPath, err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", pid); err != nil {
		os.Remove(lockPath)
		return nil, perrors.IO("write", lockPath, err)
	}

	logger.Debug("🔒 Acquired run lock", "pid", pid, "path", lockPath)
	return &Lock{path: lockPath, pid: pid, logger: logger}, nil
}

// Release removes the lock file. It is safe to call more than once.
func (lk *Lock) Release() {
	if lk == nil || lk.path == "" {
		return
	}
	if err := os.Remove(lk.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		lk.logger.Debug("⚠️ Failed to remove lock file", "error", err)
	} else {
		lk.logger.Debug("🔓 Released run lock")
	}
	lk.path = ""
}
