package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger = zap.NewNop().Sugar()

type ArchiveFetcher interface {
	// Fetch writes the resource at rawURL to destPath and returns the number of bytes written.
	// On failure destPath does not exist.
	Fetch(ctx context.Context, rawURL string, destPath string) (int64, error)
}

// SourceFetcher fetches http(s)://, s3:// and file:// URLs. It never retries.
type SourceFetcher struct {
	HTTPClient *http.Client
	S3Endpoint string
	// progress bars are drawn here; nil disables them
	Progress io.Writer

	s3client    S3ClientInterface
	newS3Client func(ctx context.Context, endpoint string) (S3ClientInterface, error)
}

func NewSourceFetcher(s3Endpoint string, progress io.Writer) *SourceFetcher {
	return &SourceFetcher{
		HTTPClient: NewSecureHTTPClient(),
		S3Endpoint: s3Endpoint,
		Progress:   progress,
		newS3Client: func(ctx context.Context, endpoint string) (S3ClientInterface, error) {
			client, err := NewS3Client(ctx, endpoint)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

func NewSecureHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}
	return &http.Client{Transport: transport}
}

func (f *SourceFetcher) Fetch(ctx context.Context, rawURL string, destPath string) (written int64, err error) {
	sugar.Infof("downloading %s", rawURL)

	if err := os.Remove(destPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("unable to remove existing file %s: %w", destPath, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid URL %s: %w", rawURL, err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", closeErr)
		}
		if err != nil {
			if rmErr := os.Remove(destPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				sugar.Warnf("unable to remove partial download %s: %v", destPath, rmErr)
			}
		}
	}()

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		written, err = f.fetchHTTP(ctx, rawURL, out)
	case "s3":
		written, err = f.fetchS3(ctx, u, out)
	case "file":
		written, err = f.fetchFile(u, out)
	default:
		err = fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if err != nil {
		return written, err
	}

	sugar.Debugf("wrote %d bytes to %s", written, destPath)
	return written, nil
}

func (f *SourceFetcher) fetchHTTP(ctx context.Context, rawURL string, out io.Writer) (int64, error) {
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error making HTTP request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return f.copyWithProgress(out, resp.Body, resp.ContentLength, path.Base(req.URL.Path))
}

func (f *SourceFetcher) fetchS3(ctx context.Context, u *url.URL, out io.Writer) (int64, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return 0, fmt.Errorf("S3 URL %s must be of the form s3://bucket/key", u)
	}

	if f.s3client == nil {
		if f.newS3Client == nil {
			return 0, fmt.Errorf("no S3 client available for %s", u)
		}
		client, err := f.newS3Client(ctx, f.S3Endpoint)
		if err != nil {
			return 0, fmt.Errorf("unable to create S3 client: %w", err)
		}
		f.s3client = client
	}

	body, size, err := f.s3client.GetObjectStream(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return f.copyWithProgress(out, body, size, path.Base(key))
}

func (f *SourceFetcher) fetchFile(u *url.URL, out io.Writer) (int64, error) {
	if u.Host != "" && u.Host != "localhost" {
		return 0, fmt.Errorf("file URL %s must not name a remote host", u)
	}
	src, err := os.Open(u.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("source %s is not a regular file", u.Path)
	}

	return f.copyWithProgress(out, src, info.Size(), path.Base(u.Path))
}

// a negative size means the length is unknown and is not checked
func (f *SourceFetcher) copyWithProgress(out io.Writer, body io.Reader, size int64, name string) (int64, error) {
	w := out
	if f.Progress != nil {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionSetDescription(fmt.Sprintf("downloading %s", name)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
		w = io.MultiWriter(out, bar)
	}

	written, err := io.Copy(w, body)
	if err != nil {
		return written, fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && written != size {
		return written, fmt.Errorf("incomplete download: got %d bytes, expected %d", written, size)
	}
	return written, nil
}
