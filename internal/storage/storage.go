package storage

import (
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrInvalidPath     = errors.New("invalid path")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var (
	ImageExtensions = []string{"png", "jpg", "jpeg", "bmp"}
	VideoExtensions = []string{"mp4", "avi", "mov", "mkv"}
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
	// Prefix is prepended to the generated name, e.g. "image" or "video".
	Prefix string
}

type Storage interface {
	SaveFile(file io.Reader, info FileInfo) (string, error)
	OpenFile(name string) (io.ReadSeekCloser, error)
	DeleteFile(name string) error
	Path(name string) string
	ResultPath(name string) string
	ResultURL(name string) string
}

// Extension returns the lower-case extension of filename without the dot.
func Extension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func IsAllowedImage(filename string) bool {
	return slices.Contains(ImageExtensions, Extension(filename))
}

func IsAllowedVideo(filename string) bool {
	return slices.Contains(VideoExtensions, Extension(filename))
}
