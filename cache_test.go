package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testArchiveURL = "https://example.com/releases/OpenJDK21U-jre_x64_linux_hotspot_21.0.3_9.tar.gz"

func testSpec(t *testing.T, rawURL string, data []byte, destDir string) PackageSpec {
	t.Helper()
	spec, err := NewPackageSpec("JRE_21", rawURL, sha256Hex(data), destDir)
	require.NoError(t, err)
	return spec
}

func TestCacheFileName(t *testing.T) {
	tests := []struct {
		rawURL  string
		want    string
		wantErr bool
	}{
		{testArchiveURL, "OpenJDK21U-jre_x64_linux_hotspot_21.0.3_9.tar.gz", false},
		{"https://example.com/a/b/jre.tar.gz?token=x", "jre.tar.gz", false},
		{"s3://bucket/prefix/jre.tar.gz", "jre.tar.gz", false},
		{"https://example.com/", "", true},
		{"https://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.rawURL, func(t *testing.T) {
			got, err := CacheFileName(tt.rawURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCacheResolverHit(t *testing.T) {
	cacheDir := t.TempDir()
	data := []byte("verified archive")
	writeTestFile(t, filepath.Join(cacheDir, "OpenJDK21U-jre_x64_linux_hotspot_21.0.3_9.tar.gz"), data)

	fetcher := staticFetcher(nil)
	metrics := NewMetrics()
	r := &CacheResolver{CacheDir: cacheDir, Fetcher: fetcher, Metrics: metrics}

	task, err := r.Resolve(context.Background(), testSpec(t, testArchiveURL, data, "/data/runtime/jre-21"))
	require.NoError(t, err)

	assert.Equal(t, 0, fetcher.calls, "a verified cache entry must not be downloaded again")
	assert.Equal(t, "JRE_21", task.Name)
	assert.Equal(t, filepath.Join(cacheDir, "OpenJDK21U-jre_x64_linux_hotspot_21.0.3_9.tar.gz"), task.ArchivePath)
	assert.Equal(t, "/data/runtime/jre-21", task.DestDir)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues(CACHE_RESULT_HIT)))
}

func TestCacheResolverMiss(t *testing.T) {
	cacheDir := t.TempDir()
	data := []byte("fresh archive")
	fetcher := staticFetcher(data)
	metrics := NewMetrics()
	r := &CacheResolver{CacheDir: cacheDir, Fetcher: fetcher, Metrics: metrics}

	task, err := r.Resolve(context.Background(), testSpec(t, testArchiveURL, data, "/data/runtime/jre-21"))
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	got, err := os.ReadFile(task.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues(CACHE_RESULT_MISS)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.downloads))
	assert.Equal(t, float64(len(data)), testutil.ToFloat64(metrics.downloadedBytes))
}

func TestCacheResolverSelfHeal(t *testing.T) {
	cacheDir := t.TempDir()
	data := []byte("the real archive")
	cachePath := filepath.Join(cacheDir, "OpenJDK21U-jre_x64_linux_hotspot_21.0.3_9.tar.gz")
	writeTestFile(t, cachePath, []byte("corrupted partial download"))

	fetcher := staticFetcher(data)
	metrics := NewMetrics()
	r := &CacheResolver{CacheDir: cacheDir, Fetcher: fetcher, Metrics: metrics}

	_, err := r.Resolve(context.Background(), testSpec(t, testArchiveURL, data, "/data/runtime/jre-21"))
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls, "a stale cache entry is fetched exactly once")
	got, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues(CACHE_RESULT_STALE)))
}

func TestCacheResolverIntegrityError(t *testing.T) {
	cacheDir := t.TempDir()
	expected := []byte("what the config pins")
	fetcher := staticFetcher([]byte("what the server returned"))
	r := &CacheResolver{CacheDir: cacheDir, Fetcher: fetcher}

	_, err := r.Resolve(context.Background(), testSpec(t, testArchiveURL, expected, "/data/runtime/jre-21"))
	require.Error(t, err)

	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, "JRE_21", integrityErr.Key)
	assert.Equal(t, sha256Hex(expected), integrityErr.Expected)
	assert.Equal(t, sha256Hex([]byte("what the server returned")), integrityErr.Actual)
	assert.Equal(t, EXIT_INTEGRITY, ExitCodeForError(err))

	_, statErr := os.Stat(filepath.Join(cacheDir, "OpenJDK21U-jre_x64_linux_hotspot_21.0.3_9.tar.gz"))
	assert.True(t, errors.Is(statErr, fs.ErrNotExist), "an unverified download must not stay in the cache")
}

func TestCacheResolverTransferError(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, rawURL string, destPath string) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}
	r := &CacheResolver{CacheDir: t.TempDir(), Fetcher: fetcher}

	_, err := r.Resolve(context.Background(), testSpec(t, testArchiveURL, []byte("x"), "/data/runtime/jre-21"))
	require.Error(t, err)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, testArchiveURL, transferErr.URL)
	assert.Equal(t, EXIT_TRANSFER, ExitCodeForError(err))
}
