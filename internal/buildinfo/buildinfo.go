// Package buildinfo holds version metadata stamped at link time.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Version is the firmware version reported in every telemetry message.
// Set at build time via -ldflags "-X siapsuhu/internal/buildinfo.Version=siap-suhu-X.Y.Z"
var Version = "siap-suhu-1.0.0"

// GitCommit is set at build time via -ldflags.
var GitCommit = "unknown"

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("%s (%s, %s/%s)", Version, GitCommit, runtime.GOOS, runtime.GOARCH)
}
