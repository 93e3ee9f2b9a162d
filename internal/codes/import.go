package codes

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultImportLimit caps uploaded code lists.
const DefaultImportLimit int64 = 1 << 20

var (
	// ErrUnsupportedFile is returned for uploads that are neither .csv nor .txt.
	ErrUnsupportedFile = errors.New("codes: only .csv and .txt files are supported")
	// ErrFileTooLarge is returned when an upload exceeds the import limit.
	ErrFileTooLarge = errors.New("codes: file too large")
)

// AcceptedExtensions lists the file types Import reads.
var AcceptedExtensions = []string{".csv", ".txt"}

// Accepts reports whether name carries one of the accepted extensions.
func Accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// Import reads an uploaded file as plain text and normalizes it. A UTF-8 or
// UTF-16 byte order mark selects the decoding; without one the input is UTF-8.
func Import(name string, r io.Reader, limit int64) (string, error) {
	if !Accepts(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, name)
	}
	if limit <= 0 {
		limit = DefaultImportLimit
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("codes: read %q: %w", name, err)
	}
	if int64(len(raw)) > limit {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrFileTooLarge, name, limit)
	}
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	text, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", fmt.Errorf("codes: decode %q: %w", name, err)
	}
	return Normalize(string(text)), nil
}
