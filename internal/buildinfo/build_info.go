// Package buildinfo describes the build of the liverel binary.
package buildinfo

import "fmt"

// BuildInfo is the version metadata set by the linker at build time.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String returns the build info as a single line.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
