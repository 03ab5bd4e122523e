package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) Save(r io.Reader, info FileInfo) (string, error) {
	ext := filepath.Ext(info.Filename)
	if ext == "" {
		ext = ".bin"
	}

	locator := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	fullPath := filepath.Join(ls.basePath, locator)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return locator, nil
}

func (ls *LocalStorage) Open(locator string) (io.ReadSeekCloser, error) {
	fullPath, err := ls.LocalPath(locator)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (ls *LocalStorage) Delete(locator string) error {
	fullPath, err := ls.LocalPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (ls *LocalStorage) LocalPath(locator string) (string, error) {
	cleanPath := filepath.Clean(locator)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("invalid locator")
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}

func (ls *LocalStorage) AllocateChunk(parentLocator string, chunkIndex int) (string, string, error) {
	cleanParent := filepath.Clean(parentLocator)
	if strings.Contains(cleanParent, "..") || filepath.IsAbs(cleanParent) {
		return "", "", fmt.Errorf("invalid locator")
	}

	ext := filepath.Ext(cleanParent)
	base := strings.TrimSuffix(cleanParent, ext)
	locator := fmt.Sprintf("%s_chunk%03d%s", base, chunkIndex, ext)

	return locator, filepath.Join(ls.basePath, locator), nil
}
