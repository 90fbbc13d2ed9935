package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalProvider implements Provider for local filesystem
type LocalProvider struct {
	basePath string
}

// NewLocalProvider creates a new local filesystem provider
func NewLocalProvider(basePath string) (*LocalProvider, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", absPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absPath)
	}

	return &LocalProvider{
		basePath: absPath,
	}, nil
}

// Root returns the absolute directory this provider is rooted at.
func (p *LocalProvider) Root() string {
	return p.basePath
}

// abs maps a root-relative path to a native one, refusing to leave the root.
func (p *LocalProvider) abs(rel string) (string, error) {
	rel = Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q escapes root", rel)
	}
	return filepath.Join(p.basePath, filepath.FromSlash(rel)), nil
}

func wrapNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	return err
}

// ListFiles lists all files in a directory (optionally recursive)
func (p *LocalProvider) ListFiles(ctx context.Context, dir string, recursive bool) ([]FileInfo, error) {
	fullPath, err := p.abs(dir)
	if err != nil {
		return nil, err
	}

	var files []FileInfo

	err = filepath.WalkDir(fullPath, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Skip root directory itself
		if filePath == fullPath {
			return nil
		}

		relPath, err := filepath.Rel(p.basePath, filePath)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files = append(files, p.fileInfo(filepath.ToSlash(relPath), info))

		// If not recursive, skip subdirectories
		if !recursive && d.IsDir() {
			return filepath.SkipDir
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", wrapNotExist(err))
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (p *LocalProvider) fileInfo(rel string, info fs.FileInfo) FileInfo {
	size := info.Size()
	if info.IsDir() {
		size = 0
	}
	return FileInfo{
		ID:      rel,
		Name:    info.Name(),
		Path:    rel,
		Size:    size,
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
}

// OpenFile opens a file for reading
func (p *LocalProvider) OpenFile(ctx context.Context, path string) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := p.abs(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", wrapNotExist(err))
	}

	return file, nil
}

// ReadPrefix reads at most n leading bytes of a file
func (p *LocalProvider) ReadPrefix(ctx context.Context, path string, n int) ([]byte, error) {
	r, err := p.OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return buf, nil
}

// WriteFile creates or overwrites a file
func (p *LocalProvider) WriteFile(ctx context.Context, path string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := p.abs(path)
	if err != nil {
		return err
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", wrapNotExist(err))
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}

	return f.Close()
}

// DeleteFile deletes a file
func (p *LocalProvider) DeleteFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := p.abs(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to delete file: %w", wrapNotExist(err))
	}

	return nil
}

// MakeDir creates a directory and any missing parents
func (p *LocalProvider) MakeDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := p.abs(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(full, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// RemoveDir removes a directory and everything below it
func (p *LocalProvider) RemoveDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if Clean(dir) == "" {
		return fmt.Errorf("refusing to remove root directory")
	}

	full, err := p.abs(dir)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	return nil
}

// Stat describes a single file or directory
func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}

	full, err := p.abs(path)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return FileInfo{}, wrapNotExist(err)
	}
	return p.fileInfo(Clean(path), info), nil
}

// Name returns the provider name
func (p *LocalProvider) Name() string {
	return "local"
}

// Close cleans up provider resources (no-op for local)
func (p *LocalProvider) Close() error {
	return nil
}

// Ensure LocalProvider implements Provider interface
var _ Provider = (*LocalProvider)(nil)
