package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ResultsURLPrefix is where processed artifacts are served from.
const ResultsURLPrefix = "/static/results/"

type LocalStorage struct {
	basePath   string
	resultsDir string
}

func NewLocalStorage(basePath, resultsDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, resultsDir: resultsDir}, nil
}

// SaveFile stores file under a fresh name of the form <prefix>_<hex>.<ext>
// and returns that name.
func (ls *LocalStorage) SaveFile(file io.Reader, info FileInfo) (string, error) {
	ext := Extension(info.Filename)
	if ext == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, info.Filename)
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	filename := fmt.Sprintf("%s.%s", id, ext)
	if info.Prefix != "" {
		filename = info.Prefix + "_" + filename
	}
	fullPath := filepath.Join(ls.basePath, filename)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

func (ls *LocalStorage) OpenFile(name string) (io.ReadSeekCloser, error) {
	fullPath, err := ls.resolve(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

func (ls *LocalStorage) DeleteFile(name string) error {
	fullPath, err := ls.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Path is the location of an uploaded file on disk.
func (ls *LocalStorage) Path(name string) string {
	return filepath.Join(ls.basePath, filepath.Base(name))
}

func (ls *LocalStorage) ResultPath(name string) string {
	return filepath.Join(ls.resultsDir, filepath.Base(name))
}

func (ls *LocalStorage) ResultURL(name string) string {
	return ResultsURLPrefix + filepath.Base(name)
}

func (ls *LocalStorage) ResultsDir() string {
	return ls.resultsDir
}

func (ls *LocalStorage) resolve(name string) (string, error) {
	cleanPath := filepath.Clean(name)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", ErrInvalidPath
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}
