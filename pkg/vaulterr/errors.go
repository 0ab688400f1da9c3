// Package vaulterr defines the closed set of error kinds returned across
// the Vault's public boundary. Every operation that can fail returns one
// of these, wrapped with %w so callers can use errors.Is/errors.As while
// the textual form presented at the boundary stays stable.
package vaulterr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these, or errors.As against the
// typed variants below (MissingFileError, InvalidManifestError, etc.) to
// recover the payload.
var (
	// ErrShardNotFound is returned when the path given to mount does not
	// exist or is not a directory.
	ErrShardNotFound = errors.New("shard not found")

	// ErrMissingFile is returned when a required path is absent from the
	// shard tree.
	ErrMissingFile = errors.New("missing required file")

	// ErrInvalidManifest is returned when manifest.json cannot be parsed
	// or fails schema validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrDatabaseError wraps a failure from the relational engine.
	ErrDatabaseError = errors.New("database error")

	// ErrNotMounted is returned by any read operation performed while the
	// Vault is Unmounted.
	ErrNotMounted = errors.New("vault is not mounted")

	// ErrContentNotFound is returned when a source hash has no entry in
	// the content map.
	ErrContentNotFound = errors.New("content not found")

	// ErrByteRangeError is returned when a requested byte range is
	// invalid or out of bounds for its content file.
	ErrByteRangeError = errors.New("invalid byte range")

	// ErrUtf8Error is returned when a byte range does not decode as
	// valid UTF-8.
	ErrUtf8Error = errors.New("invalid utf-8 in content slice")

	// ErrVerificationError is returned when the computed Merkle root
	// does not match the manifest's declared root.
	ErrVerificationError = errors.New("merkle verification failed")
)

// ShardNotFoundError carries the path that did not resolve to a shard
// directory.
type ShardNotFoundError struct {
	Path string
}

func (e *ShardNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrShardNotFound, e.Path)
}

func (e *ShardNotFoundError) Unwrap() error { return ErrShardNotFound }

// NewShardNotFound builds a ShardNotFoundError for path.
func NewShardNotFound(path string) error {
	return &ShardNotFoundError{Path: path}
}

// MissingFileError carries the relative path that was absent.
type MissingFileError struct {
	RelPath string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingFile, e.RelPath)
}

func (e *MissingFileError) Unwrap() error { return ErrMissingFile }

// NewMissingFile builds a MissingFileError for relPath.
func NewMissingFile(relPath string) error {
	return &MissingFileError{RelPath: relPath}
}

// InvalidManifestError carries the reason the manifest failed to parse
// or validate.
type InvalidManifestError struct {
	Msg string
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidManifest, e.Msg)
}

func (e *InvalidManifestError) Unwrap() error { return ErrInvalidManifest }

// NewInvalidManifest builds an InvalidManifestError with msg.
func NewInvalidManifest(msg string) error {
	return &InvalidManifestError{Msg: msg}
}

// DatabaseErrorDetail carries the underlying relational engine message.
type DatabaseErrorDetail struct {
	Msg string
}

func (e *DatabaseErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", ErrDatabaseError, e.Msg)
}

func (e *DatabaseErrorDetail) Unwrap() error { return ErrDatabaseError }

// NewDatabaseError builds a DatabaseErrorDetail wrapping the engine's msg.
func NewDatabaseError(msg string) error {
	return &DatabaseErrorDetail{Msg: msg}
}

// ContentNotFoundError carries the hash (or a descriptive message) for the
// content lookup that failed.
type ContentNotFoundError struct {
	HashOrMsg string
}

func (e *ContentNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrContentNotFound, e.HashOrMsg)
}

func (e *ContentNotFoundError) Unwrap() error { return ErrContentNotFound }

// NewContentNotFound builds a ContentNotFoundError for hashOrMsg.
func NewContentNotFound(hashOrMsg string) error {
	return &ContentNotFoundError{HashOrMsg: hashOrMsg}
}

// ByteRangeErrorDetail carries the requested, invalid [Start, End) range.
type ByteRangeErrorDetail struct {
	Start, End int
}

func (e *ByteRangeErrorDetail) Error() string {
	return fmt.Sprintf("%s: [%d, %d)", ErrByteRangeError, e.Start, e.End)
}

func (e *ByteRangeErrorDetail) Unwrap() error { return ErrByteRangeError }

// NewByteRangeError builds a ByteRangeErrorDetail for the given range.
func NewByteRangeError(start, end int) error {
	return &ByteRangeErrorDetail{Start: start, End: end}
}

// Utf8ErrorDetail carries the decode failure message.
type Utf8ErrorDetail struct {
	Msg string
}

func (e *Utf8ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", ErrUtf8Error, e.Msg)
}

func (e *Utf8ErrorDetail) Unwrap() error { return ErrUtf8Error }

// NewUtf8Error builds a Utf8ErrorDetail with msg.
func NewUtf8Error(msg string) error {
	return &Utf8ErrorDetail{Msg: msg}
}

// VerificationErrorDetail carries both the expected (manifest) and actual
// (computed) hex-encoded Merkle roots.
type VerificationErrorDetail struct {
	Expected, Actual string
}

func (e *VerificationErrorDetail) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrVerificationError, e.Expected, e.Actual)
}

func (e *VerificationErrorDetail) Unwrap() error { return ErrVerificationError }

// NewVerificationError builds a VerificationErrorDetail comparing expected
// against actual.
func NewVerificationError(expected, actual string) error {
	return &VerificationErrorDetail{Expected: expected, Actual: actual}
}
