// Package version carries the build identity stamped in via ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the identity the way start-up logs and debug pages
// display it.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
