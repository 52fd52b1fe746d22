package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/docutag/sentimint/slug"
)

// ErrNotFound is returned when a snapshot does not exist
var ErrNotFound = errors.New("snapshot not found")

// Store persists sanitized page snapshots.
// Keys are slash-separated relative paths such as "acme-corp/example-com-news.html".
type Store interface {
	SaveSnapshot(ctx context.Context, key, content string) (string, error)
	ReadSnapshot(ctx context.Context, key string) (string, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage handles filesystem storage operations
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// SaveSnapshot writes a page snapshot under snapshots/YYYY/MM/<key>.
// An existing file is never overwritten; a numeric suffix is added instead.
// Returns the relative file path from the base storage directory.
func (s *Storage) SaveSnapshot(ctx context.Context, key, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel, err := datedKey(key)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(s.config.BasePath, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Check if file already exists and make unique if necessary
	ext := filepath.Ext(filePath)
	base := strings.TrimSuffix(filePath, ext)
	for counter := 1; fileExists(filePath); counter++ {
		filePath = slug.MakeUnique(base, counter) + ext
	}

	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// Return relative path from base storage directory
	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return filepath.ToSlash(relPath), nil
}

// ReadSnapshot reads a snapshot by the path SaveSnapshot returned
func (s *Storage) ReadSnapshot(ctx context.Context, relPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full, err := s.fullPath(relPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot file: %w", err)
	}

	return string(data), nil
}

// DeleteSnapshot deletes a snapshot; a missing file is not an error
func (s *Storage) DeleteSnapshot(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.fullPath(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}

	return nil
}

// fullPath returns the filesystem path for a path SaveSnapshot returned
func (s *Storage) fullPath(relPath string) (string, error) {
	cleaned := path.Clean("/" + relPath)[1:]
	if cleaned == "" || cleaned != relPath {
		return "", fmt.Errorf("invalid snapshot path: %q", relPath)
	}
	return filepath.Join(s.config.BasePath, filepath.FromSlash(cleaned)), nil
}

// datedKey prefixes key with snapshots/YYYY/MM and rejects keys escaping the store
func datedKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid snapshot key: %q", key)
	}

	now := time.Now()
	year := fmt.Sprintf("%04d", now.Year())
	month := fmt.Sprintf("%02d", int(now.Month()))

	return path.Join("snapshots", year, month, cleaned), nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
