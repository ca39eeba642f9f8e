package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the free space a local index needs regardless of
// the bulk buffer size.
const MinDiskSpaceBytes = 100 << 20

// MinFileDescriptors is the recommended open file limit. Bleve segments and
// concurrent bulk connections each hold descriptors.
const MinFileDescriptors = 1024

// CheckDiskSpace checks the free space where a local backend writes its
// index against need, raised to MinDiskSpaceBytes. A path that does not
// exist yet is measured at its nearest existing parent.
func (c *Checker) CheckDiskSpace(path string, need int64) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}
	need = max(need, MinDiskSpaceBytes)

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existingParent(path), &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free at %s (need %s)", formatBytes(free), path, formatBytes(uint64(need)))
	if free < uint64(need) {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckFileDescriptors warns when the soft open file limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to read open file limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (recommended: %d)", limit.Cur, MinFileDescriptors)
	if limit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' before building", MinFileDescriptors*4)
		return result
	}
	result.Status = StatusPass
	return result
}

func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
