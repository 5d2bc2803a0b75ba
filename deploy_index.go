package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/sumdb/dirhash"
)

var ErrRuntimeDrift = errors.New("deployed runtimes do not match the deploy index")

// TreeHash returns the h1: hash of every regular file and symlink under dir. A symlink
// contributes its target rather than the content it points at.
func TreeHash(dir string) (string, error) {
	var files []string
	symlinks := make(map[string]string)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			symlinks[rel] = "symlink:" + target
		case !d.Type().IsRegular():
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return "", err
	}

	return dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		if target, ok := symlinks[name]; ok {
			return io.NopCloser(strings.NewReader(target)), nil
		}
		return os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	})
}

// LoadDeployIndex reads the index from targetDir. A missing index yields an empty one.
func LoadDeployIndex(targetDir string) (DeployIndex, error) {
	index := DeployIndex{Runtimes: make(map[string]DeployedRuntime)}

	indexFullPath := filepath.Join(targetDir, DEPLOY_INDEX_FILE)
	indexContents, err := os.ReadFile(indexFullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return index, nil
	}
	if err != nil {
		return index, fmt.Errorf("error loading deploy index: %w", err)
	}

	if err := json.Unmarshal(indexContents, &index); err != nil {
		return index, fmt.Errorf("error unmarshalling deploy index %s: %w", indexFullPath, err)
	}
	if index.Runtimes == nil {
		index.Runtimes = make(map[string]DeployedRuntime)
	}
	sugar.Debugf("loaded deploy index: %v", index)

	return index, nil
}

// RecordDeployment hashes each deployed tree and merges the result into the index in targetDir.
// specs and tasks are matched on key; entries for keys not deployed in this run are kept.
func RecordDeployment(targetDir string, runID string, arch string, specs []PackageSpec, tasks []ExtractionTask) (DeployIndex, error) {
	index, err := LoadDeployIndex(targetDir)
	if err != nil {
		return index, err
	}

	specsByKey := make(map[string]PackageSpec, len(specs))
	for _, spec := range specs {
		specsByKey[spec.Key] = spec
	}

	for _, task := range tasks {
		spec, ok := specsByKey[task.Name]
		if !ok {
			return index, fmt.Errorf("no package entry for deployed task %s", task.Name)
		}
		treeHash, err := TreeHash(task.DestDir)
		if err != nil {
			return index, fmt.Errorf("error hashing %s: %w", task.DestDir, err)
		}
		index.Runtimes[task.Name] = DeployedRuntime{
			DestDir:  task.DestDir,
			Archive:  task.ArchivePath,
			URL:      spec.URL,
			SHA256:   spec.ExpectedDigest,
			TreeHash: treeHash,
		}
	}

	index.RunID = runID
	index.Arch = arch
	index.GeneratedAt = time.Now().UTC()

	indexJson, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return index, fmt.Errorf("error marshalling deploy index JSON: %w", err)
	}
	if err := os.MkdirAll(targetDir, os.FileMode(0755)); err != nil {
		return index, err
	}

	// write next to the final path so the rename stays on one filesystem
	indexJsonPath := filepath.Join(targetDir, DEPLOY_INDEX_FILE)
	tmpPath := indexJsonPath + ".tmp"
	if err := os.WriteFile(tmpPath, indexJson, os.FileMode(0644)); err != nil {
		return index, fmt.Errorf("error writing deploy index JSON: %w", err)
	}
	if err := os.Rename(tmpPath, indexJsonPath); err != nil {
		os.Remove(tmpPath)
		return index, fmt.Errorf("error writing deploy index JSON: %w", err)
	}

	return index, nil
}

// VerifyDeployIndex re-hashes every runtime in the index, returning keys in sorted order.
func VerifyDeployIndex(index DeployIndex) (validRuntimes []string, invalidRuntimes []string, err error) {
	keys := make([]string, 0, len(index.Runtimes))
	for key := range index.Runtimes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		runtime := index.Runtimes[key]
		if _, err := os.Stat(runtime.DestDir); err != nil {
			sugar.Errorf("%s: %s is not accessible: %v", key, runtime.DestDir, err)
			invalidRuntimes = append(invalidRuntimes, key)
			continue
		}
		hash, err := TreeHash(runtime.DestDir)
		if err != nil {
			sugar.Errorf("%s: unable to hash %s: %v", key, runtime.DestDir, err)
			invalidRuntimes = append(invalidRuntimes, key)
			continue
		}
		if hash != runtime.TreeHash {
			sugar.Errorf("%s: tree hash %s did not match expected %s", key, hash, runtime.TreeHash)
			invalidRuntimes = append(invalidRuntimes, key)
			continue
		}
		validRuntimes = append(validRuntimes, key)
	}

	sugar.Debugf("valid runtimes: %v", validRuntimes)
	sugar.Debugf("invalid runtimes: %v", invalidRuntimes)

	return validRuntimes, invalidRuntimes, nil
}
