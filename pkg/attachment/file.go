// Package attachment loads files that are sent alongside a chat message and
// manages the revocable preview handles shown for image attachments.
package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize bounds a single attachment loaded from disk.
const MaxFileSize = 32 << 20

// ErrTooLarge is returned by Load for files above MaxFileSize.
var ErrTooLarge = errors.New("attachment exceeds maximum size")

// File is an attachment ready to be uploaded.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the attachment size in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// IsImage reports whether the attachment has an image MIME type.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// Reader returns a reader over the attachment contents.
func (f File) Reader() io.Reader {
	return bytes.NewReader(f.Data)
}

// New builds a File from in-memory data, detecting the MIME type from the
// content when mimeType is empty.
func New(name, mimeType string, data []byte) File {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return File{
		Name:     name,
		MimeType: mimeType,
		Data:     data,
	}
}

// Load reads the file at path and detects its MIME type from its contents.
func Load(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("reading attachment: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("reading attachment: %s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading attachment: %w", err)
	}

	return New(filepath.Base(path), "", data), nil
}
