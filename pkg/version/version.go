// Package version exposes build metadata stamped in at link time.
package version

import (
	"fmt"
	"runtime"
)

// Populated by the build via -ldflags; defaults describe a source build.
var (
	// Version is the release version.
	Version = "dev"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// Info returns a one-line description of this build.
func Info() string {
	return fmt.Sprintf("MemLab v%s (built: %s, %s/%s)",
		Version,
		BuildTime,
		runtime.GOOS,
		runtime.GOARCH,
	)
}
