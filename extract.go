package main

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Extractor unpacks a verified .tar.gz into a fresh destination directory, dropping the
// archive's single top-level directory.
type Extractor struct {
	// apply the numeric uid/gid stored in the archive; only meaningful when running as root
	PreserveOwner bool
	Metrics       *Metrics
}

type deferredDirMode struct {
	path    string
	mode    os.FileMode
	modTime time.Time
}

// StripLeadingComponent drops the first path component of an archive entry name. It returns
// false for entries that have nothing left after stripping, which is the top-level directory.
func StripLeadingComponent(name string) (string, bool) {
	name = strings.TrimSuffix(name, "/")
	_, rest, found := strings.Cut(name, "/")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

func (e Extractor) Extract(task ExtractionTask) (err error) {
	sugar.Infof("extracting [%s] to %s", task.Name, task.DestDir)

	if err := os.RemoveAll(task.DestDir); err != nil {
		return &ExtractionError{Key: task.Name, ArchivePath: task.ArchivePath, DestDir: task.DestDir, Err: fmt.Errorf("unable to remove old directory: %w", err)}
	}
	if err := os.MkdirAll(task.DestDir, 0o755); err != nil {
		return &ExtractionError{Key: task.Name, ArchivePath: task.ArchivePath, DestDir: task.DestDir, Err: fmt.Errorf("unable to create directory: %w", err)}
	}

	// a failed extraction must not leave a partial runtime behind
	defer func() {
		if err != nil {
			sugar.Errorf("failed to extract %s: %v", task.ArchivePath, err)
			if rmErr := os.RemoveAll(task.DestDir); rmErr != nil {
				sugar.Warnf("unable to clean up %s: %v", task.DestDir, rmErr)
			}
			err = &ExtractionError{Key: task.Name, ArchivePath: task.ArchivePath, DestDir: task.DestDir, Err: err}
		}
	}()

	if err := e.untarGz(task.ArchivePath, task.DestDir); err != nil {
		return err
	}

	e.Metrics.Extracted()
	return nil
}

func (e Extractor) untarGz(archivePath string, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gzr.Close()

	// every write goes through the root so symlinks inside the archive cannot redirect it
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return err
	}
	defer root.Close()

	var dirModes []deferredDirMode
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		rel, ok := StripLeadingComponent(header.Name)
		if !ok {
			continue
		}
		target, err := localTarget(rel)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(target, 0o755); err != nil {
				return err
			}
			dirModes = append(dirModes, deferredDirMode{
				path:    target,
				mode:    os.FileMode(header.Mode).Perm(),
				modTime: header.ModTime,
			})

		case tar.TypeReg:
			if err := writeRegularFile(root, target, header, tr); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := checkSymlinkTarget(rel, header.Linkname); err != nil {
				return err
			}
			if err := prepareTarget(root, target); err != nil {
				return err
			}
			if err := root.Symlink(header.Linkname, target); err != nil {
				return err
			}

		case tar.TypeLink:
			linkRel, ok := StripLeadingComponent(header.Linkname)
			if !ok {
				return fmt.Errorf("hard link %q points at the archive root", header.Name)
			}
			linkTarget, err := localTarget(linkRel)
			if err != nil {
				return err
			}
			if err := prepareTarget(root, target); err != nil {
				return err
			}
			if err := root.Link(linkTarget, target); err != nil {
				return err
			}

		case tar.TypeXGlobalHeader:
			continue

		default:
			sugar.Warnf("skipping unsupported entry %s (type %q)", header.Name, header.Typeflag)
			continue
		}

		if e.PreserveOwner {
			if err := root.Lchown(target, header.Uid, header.Gid); err != nil {
				return err
			}
		}
	}

	// directory modes go last so that read-only directories can still be populated
	for i := len(dirModes) - 1; i >= 0; i-- {
		d := dirModes[i]
		if err := root.Chmod(d.path, d.mode); err != nil {
			return err
		}
		if err := root.Chtimes(d.path, d.modTime, d.modTime); err != nil {
			return err
		}
	}

	return nil
}

func writeRegularFile(root *os.Root, target string, header *tar.Header, r io.Reader) error {
	if err := prepareTarget(root, target); err != nil {
		return err
	}

	mode := os.FileMode(header.Mode).Perm()
	out, err := root.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	// OpenFile is subject to the umask
	if err := root.Chmod(target, mode); err != nil {
		return err
	}
	return root.Chtimes(target, header.ModTime, header.ModTime)
}

// makes sure the parent exists and nothing but a directory occupies target
func prepareTarget(root *os.Root, target string) error {
	if err := root.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	info, err := root.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s already exists as a directory", target)
	}
	return root.Remove(target)
}

// returns rel as a path relative to the extraction root
func localTarget(rel string) (string, error) {
	target := filepath.FromSlash(rel)
	if !filepath.IsLocal(target) {
		return "", fmt.Errorf("refusing to extract %q outside of the destination", rel)
	}
	return filepath.Clean(target), nil
}

func checkSymlinkTarget(rel string, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %q has absolute target %q", rel, linkname)
	}
	if !filepath.IsLocal(filepath.Join(filepath.Dir(filepath.FromSlash(rel)), filepath.FromSlash(linkname))) {
		return fmt.Errorf("symlink %q points outside of the destination (%q)", rel, linkname)
	}
	return nil
}
