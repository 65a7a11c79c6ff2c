// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns a one-line description of the running build.
func Info() string {
	return fmt.Sprintf("kiki %s (%s) built at %s", Version, GitCommit, BuildTime)
}
