// Package preflight checks the host before compositions are accepted: the
// encoder binary must resolve and the scratch area must be writable with
// enough free space.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check.
func RunAll(ctx context.Context, ffmpegPath, scratchDir string, minFreeBytes uint64) []Result {
	return []Result{
		CheckEncoder(ctx, ffmpegPath),
		CheckScratch(ctx, scratchDir, minFreeBytes),
	}
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// versionTimeout bounds the encoder's -version run.
const versionTimeout = 10 * time.Second

// CheckEncoder verifies that the encoder binary resolves to an executable
// that answers -version.
func CheckEncoder(ctx context.Context, ffmpegPath string) Result {
	const name = "Encoder"

	cmd := strings.TrimSpace(ffmpegPath)
	if cmd == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", cmd)}
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	// #nosec G204 - binary comes from process configuration
	out, err := exec.CommandContext(ctx, resolved, "-version").Output()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: -version failed: %v)", resolved, err)}
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if version == "" {
		return Result{Name: name, Passed: true, Detail: resolved}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", resolved, version)}
}

// CheckScratch verifies that dir is a writable directory with at least
// minFreeBytes available.
func CheckScratch(ctx context.Context, dir string, minFreeBytes uint64) Result {
	const name = "Scratch directory"

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", dir)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", dir, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", dir)}
	}

	probe, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not writable: %v)", dir, err)}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: disk usage: %v)", dir, err)}
	}
	detail := fmt.Sprintf("%s (%s free of %s)", dir, formatBytes(usage.Free), formatBytes(usage.Total))
	if usage.Free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, formatBytes(minFreeBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
