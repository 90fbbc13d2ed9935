// Package enrich downloads artwork for bundles that have no image side
// file. It is best-effort: failures are logged and skipped.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/storage"
)

// Defaults.
const (
	DefaultMaxWidth   = 256
	DefaultTimeout    = 15 * time.Second
	DefaultSimilarity = 4 // max differing dHash bits for "the same picture"
	maxDownloadBytes  = 10 << 20
)

// Config configures an Enricher.
type Config struct {
	// URLTemplate builds the image URL. {name} is the path-escaped display
	// name and {slug} a lowercase dash-separated form of it.
	URLTemplate string
	MaxWidth    int
	Timeout     time.Duration
	// Similarity is the dHash distance under which a download counts as a
	// repeat of artwork already stored for another bundle in the same run.
	Similarity int
}

// Result counts what a run did.
type Result struct {
	Fetched  int
	Attached int // image already on disk, only linked
	Repeats  int // generic artwork seen for another bundle
	Failed   int
}

// Enricher fetches images and stores them as image side files.
type Enricher struct {
	provider storage.Provider
	client   *http.Client
	cfg      Config
	log      logbook.Logger
}

// New creates an Enricher.
func New(provider storage.Provider, cfg Config, log logbook.Logger) *Enricher {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultMaxWidth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Similarity <= 0 {
		cfg.Similarity = DefaultSimilarity
	}
	if log == nil {
		log = logbook.Discard
	}
	return &Enricher{
		provider: provider,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		log:      log,
	}
}

// Slug lowercases name and joins its alphanumeric runs with dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// ImageURL expands the template for a bundle name.
func ImageURL(template, name string) string {
	return strings.NewReplacer(
		"{name}", url.PathEscape(name),
		"{slug}", Slug(name),
	).Replace(template)
}

// Enrich processes bundles lacking an image and returns the ones that
// gained an image asset.
func (e *Enricher) Enrich(ctx context.Context, bundles []bundle.Bundle) ([]bundle.Bundle, Result, error) {
	var res Result
	if e.cfg.URLTemplate == "" {
		return nil, res, fmt.Errorf("enrich: no image URL template configured")
	}

	var updated []bundle.Bundle
	var seen []uint64
	for _, b := range bundles {
		if err := ctx.Err(); err != nil {
			return updated, res, err
		}
		if b.IsDuplicate || b.HasAsset(bundle.AssetImage) {
			continue
		}

		target := path.Join(b.Dir, b.Base()+bundle.ImageExt)
		asset := bundle.Asset{Filename: path.Base(target), Kind: bundle.AssetImage, Path: target}

		if storage.Exists(ctx, e.provider, target) {
			updated = append(updated, withAsset(b, asset))
			res.Attached++
			continue
		}

		data, hash, err := e.fetch(ctx, ImageURL(e.cfg.URLTemplate, b.Name))
		if err != nil {
			e.log.Warn("No image for %s: %v", b.Name, err)
			res.Failed++
			continue
		}
		if repeatOf(seen, hash, e.cfg.Similarity) {
			e.log.Info("Skipping generic artwork for %s", b.Name)
			res.Repeats++
			continue
		}
		if err := e.provider.WriteFile(ctx, target, bytes.NewReader(data)); err != nil {
			e.log.Error("Failed to store image for %s: %v", b.Name, err)
			res.Failed++
			continue
		}
		seen = append(seen, hash)
		updated = append(updated, withAsset(b, asset))
		res.Fetched++
		e.log.Success("Stored image for %s", b.Name)
	}
	return updated, res, nil
}

func (e *Enricher) fetch(ctx context.Context, rawURL string) ([]byte, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	img, _, err := Decode(body)
	if err != nil {
		return nil, 0, err
	}
	data, err := EncodePNG(img, e.cfg.MaxWidth)
	if err != nil {
		return nil, 0, err
	}
	return data, DHash(img), nil
}

func repeatOf(seen []uint64, hash uint64, threshold int) bool {
	for _, h := range seen {
		if HammingDistance(h, hash) <= threshold {
			return true
		}
	}
	return false
}

func withAsset(b bundle.Bundle, a bundle.Asset) bundle.Bundle {
	c := b.Clone()
	c.Assets = append(c.Assets, a)
	return c
}
