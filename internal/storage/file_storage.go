// Package storage keeps email attachment bytes on the local filesystem.
// The database stores only the relative path returned by Save.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrFileNotFound  = errors.New("file not found")
	ErrFileTooLarge  = errors.New("file exceeds size limit")
	ErrBlockedExt    = errors.New("file extension is blocked")
)

// MaxFileSize is the largest attachment accepted (25 MB)
const MaxFileSize = 25 * 1024 * 1024

// BlockedExtensions are never written to disk
var BlockedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true,
	".pif": true, ".scr": true, ".vbs": true, ".js": true,
	".jar": true, ".ps1": true, ".sh": true, ".bash": true,
	".msi": true, ".dll": true, ".sys": true,
}

// FileStorage stores attachment bytes
type FileStorage interface {
	// Save writes content under the account's directory and returns the
	// relative path and the number of bytes written
	Save(accountID uint, filename string, content io.Reader) (string, int64, error)
	Get(filePath string) (io.ReadCloser, error)
	Delete(filePath string) error
}

type localStorage struct {
	basePath string
	maxSize  int64
}

// NewLocalStorage creates a FileStorage rooted at basePath
func NewLocalStorage(basePath string) (FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &localStorage{basePath: basePath, maxSize: MaxFileSize}, nil
}

// validatePath resolves a relative path and refuses anything outside basePath
func (s *localStorage) validatePath(filePath string) (string, error) {
	cleanPath := filepath.Clean(filePath)
	if filepath.IsAbs(cleanPath) || strings.Contains(cleanPath, "..") || strings.Contains(cleanPath, ":") {
		return "", ErrPathTraversal
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, cleanPath))
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return absPath, nil
}

// ValidateFile checks the extension and declared size of an attachment
func ValidateFile(filename string, size int64) error {
	if BlockedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return ErrBlockedExt
	}
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

func (s *localStorage) Save(accountID uint, filename string, content io.Reader) (string, int64, error) {
	if BlockedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return "", 0, ErrBlockedExt
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if strings.ContainsAny(ext, `/\:`) {
		ext = ""
	}
	name := uuid.NewString() + ext
	rel := filepath.Join(strconv.FormatUint(uint64(accountID), 10), name[:2], name)
	full := filepath.Join(s.basePath, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create subdirectory: %w", err)
	}
	file, err := os.Create(full)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, io.LimitReader(content, s.maxSize+1))
	if err == nil && n > s.maxSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrFileTooLarge) {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}
	return rel, n, nil
}

func (s *localStorage) Get(filePath string) (io.ReadCloser, error) {
	fullPath, err := s.validatePath(filePath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file; a missing file is not an error
func (s *localStorage) Delete(filePath string) error {
	fullPath, err := s.validatePath(filePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
