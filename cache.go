package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// CacheResolver brings the cache entry for a PackageSpec into a verified state, fetching it if
// it is missing or does not match its expected digest.
type CacheResolver struct {
	CacheDir string
	Fetcher  ArchiveFetcher
	Metrics  *Metrics
}

func CacheFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("URL %s has no file name", rawURL)
	}
	return name, nil
}

func (r *CacheResolver) Resolve(ctx context.Context, spec PackageSpec) (ExtractionTask, error) {
	cacheFileName, err := CacheFileName(spec.URL)
	if err != nil {
		return ExtractionTask{}, &ConfigError{Key: spec.Key, Err: err}
	}
	cacheFile := filepath.Join(r.CacheDir, cacheFileName)

	fileReady := false
	if _, err := os.Stat(cacheFile); err == nil {
		sugar.Infof("checking existing file %s", cacheFileName)
		digest, err := FileSHA256(cacheFile)
		if err != nil {
			sugar.Warnf("error calculating hash for %s: %v", cacheFile, err)
		}
		if DigestsEqual(digest, spec.ExpectedDigest) {
			sugar.Infof("cache hit and verified: %s", cacheFileName)
			r.Metrics.CacheLookup(CACHE_RESULT_HIT)
			fileReady = true
		} else {
			sugar.Warnf("hash mismatch, deleting %s (got %s, expected %s)", cacheFileName, digest, spec.ExpectedDigest)
			r.Metrics.CacheLookup(CACHE_RESULT_STALE)
			if err := os.Remove(cacheFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return ExtractionTask{}, &TransferError{Key: spec.Key, URL: spec.URL, Err: fmt.Errorf("unable to remove stale cache entry: %w", err)}
			}
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		r.Metrics.CacheLookup(CACHE_RESULT_MISS)
	} else {
		return ExtractionTask{}, &TransferError{Key: spec.Key, URL: spec.URL, Err: fmt.Errorf("unable to stat cache entry: %w", err)}
	}

	if !fileReady {
		written, err := r.Fetcher.Fetch(ctx, spec.URL, cacheFile)
		if err != nil {
			sugar.Errorf("download failed for %s: %v", spec.Key, err)
			return ExtractionTask{}, &TransferError{Key: spec.Key, URL: spec.URL, Err: err}
		}
		r.Metrics.Downloaded(written)

		digest, err := FileSHA256(cacheFile)
		if err != nil || !DigestsEqual(digest, spec.ExpectedDigest) {
			sugar.Errorf("hash mismatch after download: %s", cacheFileName)
			if rmErr := os.Remove(cacheFile); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				sugar.Warnf("unable to remove unverified download %s: %v", cacheFile, rmErr)
			}
			return ExtractionTask{}, &IntegrityError{
				Key:      spec.Key,
				Path:     cacheFile,
				Expected: spec.ExpectedDigest,
				Actual:   digest,
				Err:      err,
			}
		}
		sugar.Infof("downloaded and verified: %s", cacheFileName)
	}

	return ExtractionTask{
		Name:        spec.Key,
		ArchivePath: cacheFile,
		DestDir:     spec.DestDir,
	}, nil
}
