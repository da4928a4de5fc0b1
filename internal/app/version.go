package app

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped by cmd/consultcal from -ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("%s (%s) %s", v.Version, v.Commit, v.Date)
}

// SetBuildInfo overrides the stamped values; empty arguments keep the
// current ones.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

// currentVersion reports the stamped build. A dev build installed with
// go install still picks up its module version.
func currentVersion() versionInfo {
	v := versionInfo{Version: buildVersion, Commit: buildCommit, Date: buildDate, GoVersion: runtime.Version()}
	if v.Version != "dev" {
		return v
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v.Version = bi.Main.Version
	}
	return v
}

func BuildVersionString() string {
	return currentVersion().String()
}
