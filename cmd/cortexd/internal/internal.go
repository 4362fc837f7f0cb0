// Package internal holds the small pieces shared across cortexd's cobra
// subcommands: config-path resolution, version/build metadata, and the
// logo banner, in the style of the teacher's cmd/.../internal helpers.go.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sipeed/cortexd/pkg/config"
)

const Logo = "[cortexd]"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// DefaultConfigPath returns ~/.cortexd/config.json, overridable by the
// CORTEXD_CONFIG environment variable.
func DefaultConfigPath() string {
	if p := os.Getenv("CORTEXD_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cortexd", "config.json")
}

// LoadConfig loads the config file at path (DefaultConfigPath() if empty),
// then applies environment overrides, per spec §6.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	return config.Load(path)
}

// GetVersion returns the version string baked in at build time via
// -ldflags, or "dev" otherwise.
func GetVersion() string { return version }

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (%s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns the recorded build time and Go version.
func FormatBuildInfo() (string, string) {
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return buildTime, goVer
}
