// Package system holds host-level setup: file descriptor limits and
// hardware encoder detection.
package system

import (
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
)

// InitResourceLimits raises the open-file limit; a run keeps many
// segment files, lists and logs open at once.
func InitResourceLimits(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("reading file limit failed", "err", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("raising file limit failed", "err", err)
	} else {
		log.Info("open file limit raised", "limit", rLimit.Cur)
	}
}

// BestH264Encoder returns the fastest available H.264 encoder: Apple
// VideoToolbox, then NVENC, then software libx264.
func BestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	available := string(out)
	for _, enc := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(available, enc) {
			return enc
		}
	}
	return "libx264"
}
