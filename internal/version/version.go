// Package version holds build metadata for the kbrag binary, injected with
// -ldflags at build time:
//
//	go build -ldflags="-X github.com/54b3r/kbrag-go/internal/version.Version=v1.0.0 \
//	                    -X github.com/54b3r/kbrag-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/kbrag-go/internal/version.BuildDate=2026-01-01"
package version

import "fmt"

// Version is the release version. The root endpoint reports it; local builds
// report "1.0.0-dev".
var Version = "1.0.0-dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build timestamp.
var BuildDate = "unknown"

// String formats all build metadata on one line.
func String() string {
	return fmt.Sprintf("kbrag %s (commit %s, built %s)", Version, Commit, BuildDate)
}
