package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set at build time with -ldflags "-X .../version.Version=v1.2.3".
// Without it, the module version embedded by go install is used.
var Version = "dev"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

// Get returns the version plus the VCS revision recorded in the build, if any.
func Get() Info {
	out := Info{Version: Version, GoVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				out.Commit = setting.Value[:7]
			}
		}
	}
	return out
}

func (i Info) String() string {
	if i.Commit == "" {
		return fmt.Sprintf("gatekeeper %s (%s)", i.Version, i.GoVersion)
	}
	return fmt.Sprintf("gatekeeper %s (%s, %s)", i.Version, i.Commit, i.GoVersion)
}
