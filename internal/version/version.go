// Package version holds build-time version info injected via ldflags.
//
// Build with:
//
//	go build -ldflags "-X github.com/xfeldman/vros/internal/version.version=v0.1.0 -X github.com/xfeldman/vros/internal/version.commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = ""
)

// Version returns the build version string.
func Version() string {
	return version
}

// String describes the build for `version` output.
func String(binary string) string {
	s := fmt.Sprintf("%s %s", binary, version)
	if commit != "" {
		s += " (" + commit + ")"
	}
	return s + " " + runtime.GOOS + "/" + runtime.GOARCH
}
