package preflight

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the default minimum free space under the data
// directory.
const MinDiskSpaceBytes = 500 * 1024 * 1024

// CheckDiskSpace checks that path has room for a rebuild: at least the
// configured minimum, and at least the size of the largest physical index
// under indexDir since a rebuild writes a full second copy. An empty
// indexDir checks the minimum only.
func (c *Checker) CheckDiskSpace(path, indexDir string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}
	available := stat.Bavail * uint64(stat.Bsize)

	need := c.minDisk
	largest, name := largestIndex(indexDir)
	if largest > need {
		need = largest
		result.Details = fmt.Sprintf("largest index %s is %s", name, formatBytes(largest))
	}

	result.Message = fmt.Sprintf("%s free (need %s)", formatBytes(available), formatBytes(need))
	if available < need {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// largestIndex returns the size and name of the biggest directory directly
// under dir. Unreadable entries count as empty.
func largestIndex(dir string) (uint64, string) {
	if dir == "" {
		return 0, ""
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, ""
	}
	var (
		largest uint64
		name    string
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if size := dirSize(filepath.Join(dir, e.Name())); size > largest {
			largest, name = size, e.Name()
		}
	}
	return largest, name
}

func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d bytes", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}
