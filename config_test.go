package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDigestA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testDigestB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "jre-pkgs.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0644))
	return configPath
}

func TestLoadConfig_Valid(t *testing.T) {
	configPath := writeTestConfig(t, `
cache_dir: /var/cache/jre
target_dir: /opt/runtime
packages:
  JRE_25:
    version: "25+36"
    amd64:
      sha256: `+testDigestA+`
    arm64:
      url: https://mirror.example.com/jre25-arm64.tar.gz
      sha256: `+testDigestB+`
  JRE_21:
    amd64:
      url: https://mirror.example.com/jre21.tar.gz
      sha256: `+testDigestA+`
  JRE_17:
    version: "17.0.11+9"
    amd64:
      sha256: `+testDigestB+`
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/jre", config.CacheDir)
	assert.Equal(t, "/opt/runtime", config.TargetDir)
	assert.Equal(t, DEFAULT_RELEASE_BASE, config.ReleaseBase)

	var keys []string
	for _, entry := range config.Packages {
		keys = append(keys, entry.Key)
	}
	assert.Equal(t, []string{"JRE_25", "JRE_21", "JRE_17"}, keys, "packages must keep document order")

	jre25 := config.Packages[0]
	assert.Equal(t, "25+36", jre25.Version)
	require.Len(t, jre25.Archs, 2)
	assert.Equal(t, "https://mirror.example.com/jre25-arm64.tar.gz", jre25.Archs["arm64"].URL)
	assert.Equal(t, testDigestA, jre25.Archs["amd64"].SHA256)
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeTestConfig(t, "packages: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, DEFAULT_CACHE_DIR, config.CacheDir)
	assert.Equal(t, DEFAULT_TARGET_DIR, config.TargetDir)
	assert.Empty(t, config.Packages)
}

func TestLoadConfig_IncompleteArchSection(t *testing.T) {
	config, err := LoadConfig(writeTestConfig(t, `
packages:
  JRE_21:
    amd64:
      url: https://example.com/jre21-x64.tar.gz
      sha256: `+testDigestA+`
    arm64:
      url: https://example.com/jre21-aarch64.tar.gz
`))
	require.NoError(t, err, "sha256 is only required for the architecture being deployed")
	require.Len(t, config.Packages, 1)
	assert.Empty(t, config.Packages[0].Archs["arm64"].SHA256)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"empty document", ""},
		{"packages missing", "cache_dir: /tmp/x\n"},
		{"unknown top-level key", "packages: {}\nstorage_type: s3\n"},
		{"sha256 too short", "packages:\n  JRE_21:\n    amd64:\n      sha256: abc123\n"},
		{"unknown arch field", "packages:\n  JRE_21:\n    amd64:\n      sha256: " + testDigestA + "\n      md5: abc\n"},
		{"release base not http", "release_base: ftp://example.com/\npackages: {}\n"},
		{"not yaml", "packages: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeTestConfig(t, tt.contents))
			require.Error(t, err)
			assert.Equal(t, EXIT_CONFIG, ExitCodeForError(err), "%v", err)
		})
	}
}

func TestLoadConfig_DuplicatePackage(t *testing.T) {
	_, err := LoadConfig(writeTestConfig(t, `
packages:
  JRE_21:
    amd64:
      sha256: `+testDigestA+`
  JRE_21:
    arm64:
      sha256: `+testDigestA+`
`))
	require.Error(t, err)
	assert.Equal(t, EXIT_CONFIG, ExitCodeForError(err))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, EXIT_CONFIG, ExitCodeForError(err))
}

func TestApplyOverrides(t *testing.T) {
	config := Configuration{CacheDir: "/var/cache/jre", TargetDir: "relative/runtime"}
	require.NoError(t, config.ApplyOverrides("/tmp/other-cache", ""))
	assert.Equal(t, "/tmp/other-cache", config.CacheDir)
	assert.True(t, filepath.IsAbs(config.TargetDir))
	assert.True(t, strings.HasSuffix(config.TargetDir, filepath.Join("relative", "runtime")), config.TargetDir)
}
