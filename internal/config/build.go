package config

// Build metadata set at link time, e.g.
//
//	go build -ldflags "-X collegeplan/internal/config.version=$(git describe --tags) \
//	    -X collegeplan/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X collegeplan/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/api
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
