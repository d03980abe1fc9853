// Package version holds build information stamped in by the linker:
//
//	go build -ldflags "-X github.com/rescale/photoup/internal/version.Version=v0.3.0"
package version

var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

// String renders the version with its build time for --version output.
func String() string {
	return Version + " (" + BuildTime + ")"
}
