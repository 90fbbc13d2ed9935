package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Provider implements Provider for an S3-compatible bucket. Directories
// are key prefixes: MakeDir is a no-op and a directory exists as long as
// some object lives below it.
type S3Provider struct {
	api    *minio.Client
	bucket string
	prefix string
}

// NewS3Provider creates a provider rooted at cfg.Prefix inside cfg.Bucket.
func NewS3Provider(cfg S3Config) (*S3Provider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3Provider{
		api:    client,
		bucket: cfg.Bucket,
		prefix: Clean(cfg.Prefix),
	}, nil
}

func (p *S3Provider) key(rel string) string {
	return strings.TrimPrefix(path.Join(p.prefix, Clean(rel)), "/")
}

// dirKey is the listing prefix for a directory ("" or "a/b/").
func (p *S3Provider) dirKey(rel string) string {
	k := p.key(rel)
	if k == "" {
		return ""
	}
	return k + "/"
}

func (p *S3Provider) rel(key string) string {
	if p.prefix == "" {
		return Clean(key)
	}
	return Clean(strings.TrimPrefix(key, p.prefix+"/"))
}

func s3NotFound(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	return err
}

// ListFiles lists objects below a prefix. Non-recursive listings report
// common prefixes as directories.
func (p *S3Provider) ListFiles(ctx context.Context, dir string, recursive bool) ([]FileInfo, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    p.dirKey(dir),
		Recursive: recursive,
	}

	var files []FileInfo
	for obj := range p.api.ListObjects(ctx, p.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		// Skip the "folder" placeholder itself
		if obj.Key == opts.Prefix {
			continue
		}

		isDir := strings.HasSuffix(obj.Key, "/")
		rel := p.rel(obj.Key)
		if isDir && recursive {
			// empty-folder placeholder objects
			continue
		}
		files = append(files, FileInfo{
			ID:      obj.Key,
			Name:    path.Base(rel),
			Path:    rel,
			Size:    obj.Size,
			ModTime: obj.LastModified,
			IsDir:   isDir,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// OpenFile opens an object for reading
func (p *S3Provider) OpenFile(ctx context.Context, rel string) (Reader, error) {
	obj, err := p.api.GetObject(ctx, p.bucket, p.key(rel), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", s3NotFound(err))
	}
	// GetObject is lazy; Stat surfaces a missing key now rather than on Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to get object: %w", s3NotFound(err))
	}
	return obj, nil
}

// ReadPrefix fetches at most n leading bytes with a ranged GET
func (p *S3Provider) ReadPrefix(ctx context.Context, rel string, n int) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(0, int64(n-1)); err != nil {
		return nil, err
	}

	obj, err := p.api.GetObject(ctx, p.bucket, p.key(rel), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", s3NotFound(err))
	}
	defer obj.Close()

	buf, err := io.ReadAll(io.LimitReader(obj, int64(n)))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", s3NotFound(err))
	}
	return buf, nil
}

// WriteFile uploads an object, replacing any existing one
func (p *S3Provider) WriteFile(ctx context.Context, rel string, r io.Reader) error {
	if _, err := p.api.PutObject(ctx, p.bucket, p.key(rel), r, -1, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// DeleteFile removes an object
func (p *S3Provider) DeleteFile(ctx context.Context, rel string) error {
	if _, err := p.Stat(ctx, rel); err != nil {
		return err
	}
	if err := p.api.RemoveObject(ctx, p.bucket, p.key(rel), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// MakeDir is a no-op: prefixes need no creation
func (p *S3Provider) MakeDir(ctx context.Context, dir string) error {
	return ctx.Err()
}

// RemoveDir deletes every object below a prefix
func (p *S3Provider) RemoveDir(ctx context.Context, dir string) error {
	if Clean(dir) == "" {
		return fmt.Errorf("refusing to remove root prefix")
	}

	opts := minio.ListObjectsOptions{Prefix: p.dirKey(dir), Recursive: true}
	for obj := range p.api.ListObjects(ctx, p.bucket, opts) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if err := p.api.RemoveObject(ctx, p.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", obj.Key, err)
		}
	}
	return nil
}

// Stat describes an object, or a prefix that has objects below it
func (p *S3Provider) Stat(ctx context.Context, rel string) (FileInfo, error) {
	rel = Clean(rel)
	if rel == "" {
		return FileInfo{Path: "", IsDir: true}, nil
	}

	info, err := p.api.StatObject(ctx, p.bucket, p.key(rel), minio.StatObjectOptions{})
	if err == nil {
		return FileInfo{
			ID:       info.Key,
			Name:     path.Base(rel),
			Path:     rel,
			Size:     info.Size,
			ModTime:  info.LastModified,
			MimeType: info.ContentType,
		}, nil
	}

	notFound := s3NotFound(err)
	if !errors.Is(notFound, ErrNotExist) {
		return FileInfo{}, err
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: p.dirKey(rel), MaxKeys: 1}
	for obj := range p.api.ListObjects(listCtx, p.bucket, opts) {
		if obj.Err != nil {
			return FileInfo{}, obj.Err
		}
		return FileInfo{ID: p.dirKey(rel), Name: path.Base(rel), Path: rel, IsDir: true}, nil
	}
	return FileInfo{}, notFound
}

// Name returns the provider name
func (p *S3Provider) Name() string {
	return "s3"
}

// Close cleans up provider resources
func (p *S3Provider) Close() error {
	return nil
}

// Ensure S3Provider implements Provider interface
var _ Provider = (*S3Provider)(nil)
