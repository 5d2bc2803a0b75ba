package main

import (
	"errors"
	"fmt"
)

var ErrUnsupportedArch = errors.New("unsupported architecture")

const (
	EXIT_OK         = 0
	EXIT_FAILURE    = 1
	EXIT_CONFIG     = 2
	EXIT_INTEGRITY  = 3
	EXIT_TRANSFER   = 4
	EXIT_EXTRACTION = 5
)

// ConfigError covers a missing or malformed config file, an unsupported architecture and
// incomplete package entries. Key is empty when the problem is not tied to one package.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %s", e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IntegrityError means a freshly downloaded archive did not hash to the expected digest.
type IntegrityError struct {
	Key      string
	Path     string
	Expected string
	Actual   string
	Err      error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity error for %s: unable to hash %s after download: %s", e.Key, e.Path, e.Err)
	}
	return fmt.Sprintf("integrity error for %s: %s has sha256 %s, expected %s", e.Key, e.Path, e.Actual, e.Expected)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

type TransferError struct {
	Key string
	URL string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error for %s (%s): %s", e.Key, e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

type ExtractionError struct {
	Key         string
	ArchivePath string
	DestDir     string
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error for %s (%s -> %s): %s", e.Key, e.ArchivePath, e.DestDir, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func ExitCodeForError(err error) int {
	if err == nil {
		return EXIT_OK
	}
	var configErr *ConfigError
	var integrityErr *IntegrityError
	var transferErr *TransferError
	var extractionErr *ExtractionError
	switch {
	case errors.As(err, &configErr):
		return EXIT_CONFIG
	case errors.As(err, &integrityErr):
		return EXIT_INTEGRITY
	case errors.As(err, &transferErr):
		return EXIT_TRANSFER
	case errors.As(err, &extractionErr):
		return EXIT_EXTRACTION
	default:
		return EXIT_FAILURE
	}
}
