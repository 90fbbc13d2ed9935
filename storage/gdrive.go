package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFolderMime = "application/vnd.google-apps.folder"

// GoogleDriveProvider implements Provider for a Google Drive folder
type GoogleDriveProvider struct {
	service   *drive.Service
	tokenFile string
	rootID    string

	mu  sync.Mutex
	ids map[string]string // root-relative path -> file id
}

// NewGoogleDriveProvider creates a new Google Drive provider rooted at
// cfg.RootFolderID ("root" when empty).
func NewGoogleDriveProvider(ctx context.Context, cfg GoogleDriveConfig) (*GoogleDriveProvider, error) {
	// Expand home directory if needed
	tokenFile := expandHome(cfg.TokenFile)
	credentialsFile := expandHome(cfg.CredentialsFile)

	// Read credentials file
	credBytes, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	// Parse OAuth2 config
	config, err := google.ConfigFromJSON(credBytes, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	// Load or create token
	token, err := loadToken(tokenFile)
	if err != nil {
		// Token doesn't exist, need to authenticate
		token, err = getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}

		// Save token for future use
		if err := saveToken(tokenFile, token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
	}

	// Create Drive service
	service, err := drive.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	rootID := cfg.RootFolderID
	if rootID == "" {
		rootID = "root"
	}

	return &GoogleDriveProvider{
		service:   service,
		tokenFile: tokenFile,
		rootID:    rootID,
		ids:       map[string]string{"": rootID},
	}, nil
}

// escapeQuery quotes a value for use inside a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// lookupChild finds a direct child of parentID by name.
func (p *GoogleDriveProvider) lookupChild(ctx context.Context, parentID, name string) (*drive.File, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), parentID)
	result, err := p.service.Files.List().
		Context(ctx).
		Q(query).
		Fields("files(id, name, size, modifiedTime, mimeType)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if len(result.Files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	return result.Files[0], nil
}

// resolve returns the file id for a root-relative path, walking one path
// component at a time and caching what it finds.
func (p *GoogleDriveProvider) resolve(ctx context.Context, path string) (string, error) {
	path = Clean(path)

	p.mu.Lock()
	id, ok := p.ids[path]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	parentID, err := p.resolve(ctx, Dir(path))
	if err != nil {
		return "", err
	}

	file, err := p.lookupChild(ctx, parentID, filepath.Base(path))
	if err != nil {
		return "", err
	}

	p.remember(path, file.Id)
	return file.Id, nil
}

func (p *GoogleDriveProvider) remember(path, id string) {
	p.mu.Lock()
	p.ids[path] = id
	p.mu.Unlock()
}

// forget drops cached ids for path and everything below it.
func (p *GoogleDriveProvider) forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.ids {
		if k == path || strings.HasPrefix(k, path+"/") {
			delete(p.ids, k)
		}
	}
	if path == "" {
		p.ids[""] = p.rootID
	}
}

func driveFileInfo(file *drive.File, path string) FileInfo {
	modTime, _ := time.Parse(time.RFC3339, file.ModifiedTime)
	return FileInfo{
		ID:       file.Id,
		Name:     file.Name,
		Path:     path,
		Size:     file.Size,
		ModTime:  modTime,
		IsDir:    file.MimeType == driveFolderMime,
		MimeType: file.MimeType,
	}
}

// ListFiles lists all files in a directory (optionally recursive)
func (p *GoogleDriveProvider) ListFiles(ctx context.Context, dir string, recursive bool) ([]FileInfo, error) {
	folderID, err := p.resolve(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to find folder: %w", err)
	}

	var files []FileInfo
	if err := p.listFilesRecursive(ctx, folderID, Clean(dir), recursive, &files); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// listFilesRecursive recursively lists files
func (p *GoogleDriveProvider) listFilesRecursive(ctx context.Context, folderID, currentPath string, recursive bool, files *[]FileInfo) error {
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	pageToken := ""
	for {
		result, err := p.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, size, modifiedTime, mimeType)").
			PageToken(pageToken).
			Do()
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}

		for _, file := range result.Files {
			filePath := Join(currentPath, file.Name)
			info := driveFileInfo(file, filePath)
			p.remember(filePath, file.Id)
			*files = append(*files, info)

			// Recurse into subfolders if recursive
			if recursive && info.IsDir {
				if err := p.listFilesRecursive(ctx, file.Id, filePath, recursive, files); err != nil {
					return err
				}
			}
		}

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	return nil
}

// OpenFile opens a file for reading
func (p *GoogleDriveProvider) OpenFile(ctx context.Context, path string) (Reader, error) {
	id, err := p.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	resp, err := p.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}

	return resp.Body, nil
}

// ReadPrefix downloads at most n leading bytes using a Range request
func (p *GoogleDriveProvider) ReadPrefix(ctx context.Context, path string, n int) ([]byte, error) {
	id, err := p.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	call := p.service.Files.Get(id).Context(ctx)
	call.Header().Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
	resp, err := call.Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, int64(n)))
}

// WriteFile creates or overwrites a file
func (p *GoogleDriveProvider) WriteFile(ctx context.Context, path string, r io.Reader) error {
	path = Clean(path)

	if id, err := p.resolve(ctx, path); err == nil {
		if _, err := p.service.Files.Update(id, &drive.File{}).Context(ctx).Media(r).Do(); err != nil {
			return fmt.Errorf("failed to overwrite file: %w", err)
		}
		return nil
	} else if !errors.Is(err, ErrNotExist) {
		return err
	}

	parentID, err := p.resolve(ctx, Dir(path))
	if err != nil {
		return fmt.Errorf("failed to find parent folder: %w", err)
	}

	created, err := p.service.Files.Create(&drive.File{
		Name:    filepath.Base(path),
		Parents: []string{parentID},
	}).Context(ctx).Media(r).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	p.remember(path, created.Id)
	return nil
}

// DeleteFile deletes a file
func (p *GoogleDriveProvider) DeleteFile(ctx context.Context, path string) error {
	id, err := p.resolve(ctx, path)
	if err != nil {
		return err
	}

	if err := p.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", driveNotFound(err))
	}

	p.forget(Clean(path))
	return nil
}

// MakeDir creates a folder and any missing parents
func (p *GoogleDriveProvider) MakeDir(ctx context.Context, dir string) error {
	dir = Clean(dir)
	if dir == "" {
		return nil
	}

	if _, err := p.resolve(ctx, dir); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotExist) {
		return err
	}

	if err := p.MakeDir(ctx, Dir(dir)); err != nil {
		return err
	}

	parentID, err := p.resolve(ctx, Dir(dir))
	if err != nil {
		return err
	}

	created, err := p.service.Files.Create(&drive.File{
		Name:     filepath.Base(dir),
		MimeType: driveFolderMime,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	p.remember(dir, created.Id)
	return nil
}

// RemoveDir deletes a folder; Drive removes its contents with it
func (p *GoogleDriveProvider) RemoveDir(ctx context.Context, dir string) error {
	dir = Clean(dir)
	if dir == "" {
		return fmt.Errorf("refusing to remove root folder")
	}
	return p.DeleteFile(ctx, dir)
}

// Stat describes a single file or folder
func (p *GoogleDriveProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	id, err := p.resolve(ctx, path)
	if err != nil {
		return FileInfo{}, err
	}

	file, err := p.service.Files.Get(id).Context(ctx).Fields("id, name, size, modifiedTime, mimeType").Do()
	if err != nil {
		return FileInfo{}, driveNotFound(err)
	}
	return driveFileInfo(file, Clean(path)), nil
}

// Name returns the provider name
func (p *GoogleDriveProvider) Name() string {
	return "google-drive"
}

// Close cleans up provider resources
func (p *GoogleDriveProvider) Close() error {
	// Nothing to close for Drive service
	return nil
}

func driveNotFound(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	return err
}

// Helper functions

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(file string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	// Generate auth URL
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Printf("\n🔐 Go to the following link in your browser:\n%s\n\n", authURL)
	fmt.Print("Enter authorization code: ")

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	// Exchange code for token
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	return token, nil
}

// Ensure GoogleDriveProvider implements Provider interface
var _ Provider = (*GoogleDriveProvider)(nil)
