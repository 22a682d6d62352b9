package image

import (
	"errors"
	"fmt"
)

// Domain-specific errors for image operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDirectoryNotFound is returned by Scan when the directory does not exist.
	// Callers treat it as an empty, no-op run.
	ErrDirectoryNotFound = errors.New("image: directory not found")

	// ErrNotDirectory is returned by Scan when the path is a regular file.
	ErrNotDirectory = errors.New("image: path is not a directory")

	// ErrEncodeFailed is matched by every EncodeError.
	ErrEncodeFailed = errors.New("image: encode failed")

	// ErrSignatureMismatch is returned by CheckSignature when the encoded
	// text does not start with the prefix expected for the file extension.
	// It is advisory only.
	ErrSignatureMismatch = errors.New("image: unexpected base64 prefix")
)

// EncodeError reports a per-file read failure. It is recoverable: the
// run skips the file and continues.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("image: encoding %s: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *EncodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEncodeFailed) match.
func (e *EncodeError) Is(target error) bool { return target == ErrEncodeFailed }
