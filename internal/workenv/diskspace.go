// SPDX-License-Identifier: Apache-2.0
package workenv

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-hclog"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

// DiskSpaceMultiplier leaves room for the build output next to the
// extracted sources.
const DiskSpaceMultiplier = 2

// CheckDiskSpace fails when the filesystem holding l.Root has less than
// DiskSpaceMultiplier times need bytes free. If the free space cannot be
// determined the check passes with a warning.
func CheckDiskSpace(l Layout, need int64, logger hclog.Logger) error {
	available, err := availableDiskSpace(l.Root)
	if err != nil {
		logger.Warn("⚠️ Could not check disk space", "error", err)
		return nil
	}

	needed := int64(math.MaxInt64)
	if need < math.MaxInt64/DiskSpaceMultiplier {
		needed = need * DiskSpaceMultiplier
	}
	neededMB := float64(needed) / (1024 * 1024)
	availableMB := float64(available) / (1024 * 1024)
	logger.Debug("💾 Disk space check", "needed_mb", fmt.Sprintf("%.2f", neededMB), "available_mb", fmt.Sprintf("%.2f", availableMB))

	if available < needed {
		logger.Error("❌ Insufficient disk space",
			"needed_mb", fmt.Sprintf("%.2f", neededMB),
			"available_mb", fmt.Sprintf("%.2f", availableMB))
		return perrors.IO("extract", l.Root,
			fmt.Errorf("insufficient disk space: need %.2f MB, have %.2f MB", neededMB, availableMB))
	}
	return nil
}
