package internal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_UsesHomeDir(t *testing.T) {
	t.Setenv("CORTEXD_CONFIG", "")
	t.Setenv("HOME", "/tmp/home")

	got := DefaultConfigPath()
	want := filepath.Join("/tmp/home", ".cortexd", "config.json")

	assert.Equal(t, want, got)
}

func TestDefaultConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("CORTEXD_CONFIG", "/etc/cortexd/config.json")

	assert.Equal(t, "/etc/cortexd/config.json", DefaultConfigPath())
}

func TestFormatVersion_NoGitCommit(t *testing.T) {
	oldVersion, oldGit := version, gitCommit
	t.Cleanup(func() { version, gitCommit = oldVersion, oldGit })

	version = "1.2.3"
	gitCommit = ""

	assert.Equal(t, "1.2.3", FormatVersion())
}

func TestFormatVersion_WithGitCommit(t *testing.T) {
	oldVersion, oldGit := version, gitCommit
	t.Cleanup(func() { version, gitCommit = oldVersion, oldGit })

	version = "1.2.3"
	gitCommit = "abc123"

	assert.Equal(t, "1.2.3 (abc123)", FormatVersion())
}

func TestFormatBuildInfo_UsesRecordedValues(t *testing.T) {
	oldBuildTime, oldGoVersion := buildTime, goVersion
	t.Cleanup(func() { buildTime, goVersion = oldBuildTime, oldGoVersion })

	buildTime = "2026-02-20T00:00:00Z"
	goVersion = "go1.23.0"

	build, goVer := FormatBuildInfo()

	assert.Equal(t, buildTime, build)
	assert.Equal(t, goVersion, goVer)
}

func TestFormatBuildInfo_FallsBackToRuntimeGoVersion(t *testing.T) {
	oldGoVersion := goVersion
	t.Cleanup(func() { goVersion = oldGoVersion })

	goVersion = ""

	_, goVer := FormatBuildInfo()
	assert.NotEmpty(t, goVer)
}

func TestGetVersion_DefaultsToDev(t *testing.T) {
	oldVersion := version
	t.Cleanup(func() { version = oldVersion })

	version = "dev"
	assert.Equal(t, "dev", GetVersion())
}
