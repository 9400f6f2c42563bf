package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const devVersion = "0.1.0-dev"

// Version is the release of the running binary. Release builds set it with
// -ldflags "-X github.com/clustercheck/clustercheck/pkg/version.Version=<value>".
var Version = devVersion

var readBuildInfo = debug.ReadBuildInfo

// Build describes how the binary was produced.
type Build struct {
	Version   string
	Revision  string
	Modified  bool
	GoVersion string
}

// String renders the build for the version command.
func (b Build) String() string {
	var extra []string
	if b.Revision != "" {
		rev := b.Revision
		if b.Modified {
			rev += "-dirty"
		}
		extra = append(extra, "rev "+rev)
	}
	if b.GoVersion != "" {
		extra = append(extra, b.GoVersion)
	}
	if len(extra) == 0 {
		return fmt.Sprintf("check-cluster %s", b.Version)
	}
	return fmt.Sprintf("check-cluster %s (%s)", b.Version, strings.Join(extra, ", "))
}

// Current inspects the embedded build information.
func Current() Build {
	build := Build{Version: Version, GoVersion: runtime.Version()}
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Revision = shortRevision(setting.Value)
		case "vcs.modified":
			build.Modified = setting.Value == "true"
		}
	}
	if build.Version == devVersion {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			build.Version = v
		} else if build.Revision != "" {
			build.Version = "devel+" + build.Revision
		}
	}
	return build
}

func shortRevision(rev string) string {
	rev = strings.TrimSpace(rev)
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// UserAgent identifies the binary in outbound HTTP requests.
func UserAgent() string {
	return "check-cluster/" + Current().Version
}
