package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	// dirMode restricts created parent directories to the owner.
	dirMode fs.FileMode = 0700

	// fileMode allows owner read/write and group read, nothing else.
	fileMode fs.FileMode = 0640
)

// FileStore provides durable token storage in a single JSON file.
// The file is read once at construction; changes stay in memory until Flush
// or Close rewrite it atomically using temp file + rename for crash safety.
//
// Multiple processes sharing one file are not coordinated: the last writer wins.
type FileStore struct {
	*support
	filePath string

	closeOnce sync.Once
	closeErr  error
}

// Compile-time check to ensure FileStore implements TokenStore
var _ TokenStore = (*FileStore)(nil)

// NewFileStore opens the token file at filePath. A missing file starts an
// empty store, creating parent directories with 0700 permissions. An existing
// file that cannot be read or decoded fails with ErrStorage; it is never
// partially trusted.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving tokens file path %s: %w", ErrStorage, filePath, err)
	}

	var tokens tokenMap
	info, err := os.Stat(absPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("%w: failed to create tokens file directory %q: %w", ErrStorage, dir, err)
		}
		tokens = tokenMap{}
	case err != nil:
		return nil, fmt.Errorf("%w: unreadable tokens file %s: %w", ErrStorage, absPath, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: unreadable tokens file %s: is a directory", ErrStorage, absPath)
	default:
		tokens, err = readTokensFile(absPath)
		if err != nil {
			return nil, err
		}
	}

	return &FileStore{
		support:  newSupport(tokens),
		filePath: absPath,
	}, nil
}

func readTokensFile(path string) (tokenMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable tokens file %s: %w", ErrStorage, path, err)
	}

	tokens, err := decodeTokens(data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed tokens file %s: %w", ErrStorage, path, err)
	}
	return tokens, nil
}

// Path returns the absolute location of the token file.
func (f *FileStore) Path() string {
	return f.filePath
}

// Flush atomically rewrites the token file with the current map.
// On failure the previous file contents are left untouched.
func (f *FileStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeTokens(f.snapshot())
	if err != nil {
		return fmt.Errorf("%w: encoding tokens: %w", ErrStorage, err)
	}

	// Create temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, filepath.Base(f.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths; after a successful rename this is a no-op
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrStorage, tempName, err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	// Atomic rename to final location
	if err := os.Rename(tempName, f.filePath); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// Close writes the token file once. Later calls return the first result.
func (f *FileStore) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.Flush(context.Background())
	})
	return f.closeErr
}
