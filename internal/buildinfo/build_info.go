// Package buildinfo carries the version stamp baked into the executable at
// link time.
package buildinfo

import "fmt"

// BuildInfo identifies one build of the executable.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String renders the build info for version banners.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
