package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	// AppName of the application
	AppName = "driftsync"

	// Version of the application, overridable via ldflags
	Version = "0.2.0-dev"

	// Revision is the VCS commit the binary was built from
	Revision = "HEAD"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	if Version == "0.2.0-dev" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && (Revision == "HEAD" || Revision == "") {
			Revision = s.Value
		}
	}
}

// Short returns a concise version string - `0.2.0 (5e23a4)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// Detailed returns the version with toolchain and platform info.
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
