// Package storage provides the filesystem capability the scanner and the
// file operation engine work against.
//
// Every path handed to a Provider is relative to the provider's root and
// uses forward slashes; "" is the root itself.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned (wrapped) when a path does not exist.
var ErrNotExist = errors.New("file does not exist")

// FileInfo represents a file from any storage provider
type FileInfo struct {
	ID       string    // Provider-specific ID (for local: relative path)
	Name     string    // File name
	Path     string    // Root-relative slash path
	Size     int64     // File size in bytes
	ModTime  time.Time // Last modified time
	IsDir    bool      // Is directory
	MimeType string    // MIME type (if available)
}

// Reader provides read access to a file
type Reader interface {
	io.ReadCloser
}

// Provider defines the interface for storage providers
type Provider interface {
	// ListFiles lists files and directories in a directory (optionally recursive)
	ListFiles(ctx context.Context, dir string, recursive bool) ([]FileInfo, error)

	// OpenFile opens a file for reading
	OpenFile(ctx context.Context, path string) (Reader, error)

	// ReadPrefix reads at most n leading bytes of a file
	ReadPrefix(ctx context.Context, path string, n int) ([]byte, error)

	// WriteFile creates or overwrites a file. The parent directory must exist.
	WriteFile(ctx context.Context, path string, r io.Reader) error

	// DeleteFile deletes a file
	DeleteFile(ctx context.Context, path string) error

	// MakeDir creates a directory and any missing parents
	MakeDir(ctx context.Context, dir string) error

	// RemoveDir removes a directory and everything below it
	RemoveDir(ctx context.Context, dir string) error

	// Stat describes a single file or directory
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Name returns the provider name
	Name() string

	// Close cleans up provider resources
	Close() error
}

// CloudConfig holds cloud provider configuration
type CloudConfig struct {
	GoogleDrive *GoogleDriveConfig `json:"google_drive,omitempty" yaml:"google_drive,omitempty"`
	S3          *S3Config          `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// GoogleDriveConfig holds Google Drive configuration
type GoogleDriveConfig struct {
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	TokenFile       string `json:"token_file,omitempty" yaml:"token_file,omitempty"`
	RootFolderID    string `json:"root_folder_id,omitempty" yaml:"root_folder_id,omitempty"`
}

// S3Config holds S3-compatible object storage configuration
type S3Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
}

// ProviderType represents the type of storage provider
type ProviderType string

const (
	ProviderLocal       ProviderType = "local"
	ProviderGoogleDrive ProviderType = "gdrive"
	ProviderS3          ProviderType = "s3"
)

// Clean normalizes a root-relative path: forward slashes, no leading or
// trailing slash, "" for the root.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Join joins root-relative path elements.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// Dir returns the parent of a root-relative path ("" for top-level entries).
func Dir(p string) string {
	d := path.Dir(Clean(p))
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// Exists reports whether path exists. Errors other than ErrNotExist count
// as existing so callers never overwrite something they could not inspect.
func Exists(ctx context.Context, p Provider, path string) bool {
	_, err := p.Stat(ctx, path)
	return err == nil || !errors.Is(err, ErrNotExist)
}

// CopyFile copies src to dst within a provider.
func CopyFile(ctx context.Context, p Provider, src, dst string) error {
	r, err := p.OpenFile(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()
	return p.WriteFile(ctx, dst, r)
}

// ReadFile reads a whole file.
func ReadFile(ctx context.Context, p Provider, path string) ([]byte, error) {
	r, err := p.OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteBytes creates or overwrites a file with data.
func WriteBytes(ctx context.Context, p Provider, path string, data []byte) error {
	return p.WriteFile(ctx, path, strings.NewReader(string(data)))
}

// Open creates the provider of the given type. dir is the local root for
// ProviderLocal and ignored otherwise.
func Open(ctx context.Context, typ ProviderType, dir string, cloud CloudConfig) (Provider, error) {
	switch typ {
	case "", ProviderLocal:
		p, err := NewLocalProvider(dir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderGoogleDrive:
		if cloud.GoogleDrive == nil {
			return nil, fmt.Errorf("google drive provider selected but not configured")
		}
		p, err := NewGoogleDriveProvider(ctx, *cloud.GoogleDrive)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderS3:
		if cloud.S3 == nil {
			return nil, fmt.Errorf("s3 provider selected but not configured")
		}
		p, err := NewS3Provider(*cloud.S3)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", typ)
	}
}
