package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/scan"
	"github.com/luinbytes/iconic/storage"
)

// watchCmd creates the watch command.
func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Rescan whenever files change below the library root (local provider)",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "debounce", Usage: "Quiet period before a rescan (default from config)"},
			&cli.BoolFlag{Name: "analyze", Usage: "Analyze new unclassified bundles after each rescan"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			if s.cfg.Provider != "" && s.cfg.Provider != storage.ProviderLocal {
				return apperr.NewPrecondition("watch mode needs the local provider")
			}
			debounce := s.cfg.WatchDebounce
			if c.IsSet("debounce") {
				debounce = c.Duration("debounce")
			}
			return runWatch(c.Context, s, debounce, c.Bool("analyze"))
		}),
	}
}

// runWatch rescans the library after each burst of file events until ctx
// is cancelled.
func runWatch(ctx context.Context, s *session, debounce time.Duration, analyze bool) error {
	root := s.cfg.Dir
	log := s.log

	log.Success("Watching: %s (debounce %v)", root, debounce)
	log.Success("Press Ctrl+C to stop watching...")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDir(watcher, root); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	var debounceTimer *time.Timer
	debounceChan := make(chan struct{}, 1)
	pending := 0
	rescans := 0

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Success("Watch mode stopped after %d rescans.", rescans)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watchable(root, event.Name) {
				continue
			}

			// New folders are watched too; their files arrive as separate events.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addWatchDir(watcher, event.Name); err == nil {
						log.Info("Now watching: %s", event.Name)
					}
				}
			}

			pending++
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case debounceChan <- struct{}{}:
				default:
				}
			})

		case <-debounceChan:
			if pending == 0 {
				continue
			}
			log.Info("%d file events, rescanning...", pending)
			pending = 0
			rescans++
			if err := s.ws.Rescan(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error("Rescan failed: %v", err)
				continue
			}
			counts := s.ws.Counts()
			log.Success("Library: %d bundles, %d uncategorized, %d duplicates", counts.Total, counts.Uncategorized, counts.Duplicates)

			if analyze && unclassified(s.ws.Bundles()) > 0 {
				report, err := s.ws.Analyze(ctx, nil)
				if err != nil {
					log.Error("Analysis failed: %v", err)
					continue
				}
				reportAnalysis(os.Stdout, report)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error: %v", err)
		}
	}
}

func unclassified(bundles []bundle.Bundle) int {
	n := 0
	for _, b := range bundles {
		if !b.IsDuplicate && len(b.Tags) == 0 {
			n++
		}
	}
	return n
}

// watchable reports whether a change to path can affect the library. Names
// the scanner ignores, iconic's own state files among them, never trigger a
// rescan.
func watchable(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if scan.Ignored(part) {
			return false
		}
	}
	return true
}

// addWatchDir adds a directory and its subdirectories to the watcher
func addWatchDir(watcher *fsnotify.Watcher, dir string) error {
	if err := watcher.Add(dir); err != nil {
		return err
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() || path == dir {
			return nil
		}
		if scan.Ignored(info.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return nil // Skip directories we can't watch
		}
		return nil
	})
}
