package image

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// Base64 prefixes produced by the JPEG (FF D8 FF) and PNG (89 50 4E 47 0D 0A)
// magic bytes.
const (
	jpegPrefix = "/9j/"
	pngPrefix  = "iVBORw0K"
)

// Logger is the logging surface used by the encoder.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Payload is the base64 text of one file.
type Payload struct {
	File File

	// Text is standard base64 with no line wrapping.
	Text string
}

// Size returns the payload length in characters.
func (p *Payload) Size() int { return len(p.Text) }

// Encoder reads image files and encodes them as base64 text.
type Encoder struct {
	logger Logger
}

// NewEncoder returns an Encoder. A nil logger disables logging.
func NewEncoder(logger Logger) *Encoder {
	return &Encoder{logger: logger}
}

// Encode reads the whole file and returns its base64 encoding.
//
// Read failures are returned as *EncodeError (errors.Is ErrEncodeFailed);
// the caller skips the file and moves on. A zero-length file encodes to an
// empty payload without error.
//
// A mismatch between the extension and the leading base64 characters
// is logged as a warning and never fails the encode.
func (e *Encoder) Encode(f File) (*Payload, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &EncodeError{Path: f.Path, Err: err}
	}

	p := &Payload{
		File: f,
		Text: base64.StdEncoding.EncodeToString(data),
	}

	if err := CheckSignature(f.Ext, p.Text); err != nil && e.logger != nil {
		e.logger.Warn("image does not have expected base64 prefix",
			"path", f.Path,
			"ext", f.Ext,
			"error", err,
		)
	}

	if e.logger != nil {
		e.logger.Info("encoded image", "path", f.Path, "size_chars", p.Size())
	}

	return p, nil
}

// CheckSignature compares the start of the encoded text with the prefix
// expected for JPEG and PNG files. Other extensions always pass.
//
// The check only looks at base64 text, so it is a heuristic.
func CheckSignature(ext, encoded string) error {
	var want string
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		want = jpegPrefix
	case "png":
		want = pngPrefix
	default:
		return nil
	}

	if !strings.HasPrefix(encoded, want) {
		return fmt.Errorf("%w: %s data should start with %q", ErrSignatureMismatch, ext, want)
	}
	return nil
}
