package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/classify"
	"github.com/luinbytes/iconic/config"
	"github.com/luinbytes/iconic/enrich"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/oracle"
	"github.com/luinbytes/iconic/storage"
	"github.com/luinbytes/iconic/workspace"
)

const version = "1.0.0"

func main() {
	// Launched from a file manager: reopen inside a terminal on the review screen.
	if len(os.Args) == 1 && isDoubleClick() {
		if err := spawnTerminal(); err == nil {
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			code = exit.ExitCode()
		}
		stop()
		os.Exit(code)
	}
}

// newApp creates the CLI application with all commands.
func newApp() *cli.App {
	app := &cli.App{
		Name:    "iconic",
		Usage:   "Sort plugin preset bundles into category folders",
		Version: version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			scanCmd(),
			analyzeCmd(),
			organizeCmd(),
			flattenCmd(),
			revertCmd(),
			tagCmd(),
			renameCmd(),
			duplicateCmd(),
			rulesCmd(),
			categoriesCmd(),
			enrichCmd(),
			reviewCmd(),
			watchCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Value: ".", Usage: "Library root (local provider)"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config file (YAML or JSON)"},
		&cli.StringFlag{Name: "provider", Value: string(storage.ProviderLocal), Usage: "Storage provider: local|gdrive|s3"},
		&cli.StringFlag{Name: "api-key", Usage: "Oracle API key (default: $ICONIC_API_KEY, $OPENAI_API_KEY)"},
		&cli.StringFlag{Name: "model", Usage: "Oracle model"},
		&cli.StringFlag{Name: "base-url", Usage: "OpenAI-compatible endpoint"},
		&cli.StringFlag{Name: "profile", Usage: "Category profile when the library has no saved list"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Verbose output"},
		&cli.BoolFlag{Name: "no-emoji", Usage: "Disable emoji output for cleaner logs"},
		&cli.BoolFlag{Name: "dry-run", Usage: "Log file operations without touching anything"},
		&cli.BoolFlag{Name: "multi-tag", Value: true, Usage: "Copy bundles into every tagged category"},
		&cli.BoolFlag{Name: "dedupe", Value: true, Usage: "Delete bundles flagged as duplicates on organize"},
		&cli.BoolFlag{Name: "auto-execute", Usage: "Organize right after a successful analysis"},
		&cli.BoolFlag{Name: "download-images", Usage: "Fetch artwork for bundles without an image after analysis"},
	}
}

// flagSource is the part of *cli.Context applyFlags reads.
type flagSource interface {
	IsSet(name string) bool
	String(name string) string
	Bool(name string) bool
}

// applyFlags overrides config values with flags the user actually set.
func applyFlags(cfg *config.Config, f flagSource) {
	if f.IsSet("dir") {
		cfg.Dir = f.String("dir")
	}
	if f.IsSet("provider") {
		cfg.Provider = storage.ProviderType(f.String("provider"))
	}
	if f.IsSet("api-key") {
		cfg.Oracle.APIKey = f.String("api-key")
	}
	if f.IsSet("model") {
		cfg.Oracle.Model = f.String("model")
	}
	if f.IsSet("base-url") {
		cfg.Oracle.BaseURL = f.String("base-url")
	}
	if f.IsSet("profile") {
		cfg.Profile = f.String("profile")
		cfg.Categories = nil
	}
	if f.IsSet("dry-run") {
		cfg.Settings.DryRun = f.Bool("dry-run")
	}
	if f.IsSet("multi-tag") {
		cfg.Settings.MultiTag = f.Bool("multi-tag")
	}
	if f.IsSet("dedupe") {
		cfg.Settings.Deduplicate = f.Bool("dedupe")
	}
	if f.IsSet("auto-execute") {
		cfg.Settings.AutoExecute = f.Bool("auto-execute")
	}
	if f.IsSet("download-images") {
		cfg.Settings.DownloadImages = f.Bool("download-images")
	}
}

// loadConfig layers the config files and the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	workDir := "."
	if c.IsSet("dir") {
		workDir = c.String("dir")
	}
	cfg, err := config.Load(config.LoadOptions{
		GlobalDir: config.DefaultGlobalDir(),
		WorkDir:   workDir,
		File:      c.String("config"),
	})
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, c)
	if cfg.Provider == "" || cfg.Provider == storage.ProviderLocal {
		if abs, err := filepath.Abs(cfg.Dir); err == nil {
			cfg.Dir = abs
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperr.NewInvalidInput(err.Error())
	}
	return cfg, nil
}

// stderrIsTerminal reports whether progress bars can be drawn.
func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newLogger(c *cli.Context) *logbook.Console {
	return logbook.NewConsole(os.Stderr, logbook.ConsoleOptions{
		NoEmoji: c.Bool("no-emoji"),
		Color:   stderrIsTerminal(),
		Verbose: c.Bool("verbose"),
	})
}

// session is an open library plus the clients wired into it.
type session struct {
	cfg      *config.Config
	log      *logbook.Console
	provider storage.Provider
	ws       *workspace.Workspace
	client   *oracle.Client
}

// openSession loads config, connects the provider and opens the workspace.
func openSession(c *cli.Context) (*session, error) {
	ctx := c.Context
	log := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	categories, err := cfg.ResolveCategories()
	if err != nil {
		return nil, apperr.NewInvalidInput(err.Error())
	}

	provider, err := storage.Open(ctx, cfg.Provider, cfg.Dir, cfg.Cloud)
	if err != nil {
		return nil, fmt.Errorf("cannot open library: %w", err)
	}

	opts := workspace.Options{
		Provider:      provider,
		Categories:    categories,
		Settings:      cfg.Settings,
		AutosaveDelay: cfg.AutosaveDelay,
		Log:           log,
	}

	s := &session{cfg: cfg, log: log, provider: provider}
	if cfg.Oracle.APIKey != "" {
		client, err := oracle.New(oracle.Config{
			APIKey:            cfg.Oracle.APIKey,
			BaseURL:           cfg.Oracle.BaseURL,
			Model:             cfg.Oracle.Model,
			RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
		}, log)
		if err != nil {
			provider.Close()
			return nil, err
		}
		s.client = client
		opts.Oracle = classify.NewRetrying(client, log)
		opts.Suggester = client
	}
	if cfg.Enrich.URLTemplate != "" {
		opts.Enricher = enrich.New(provider, enrich.Config{
			URLTemplate: cfg.Enrich.URLTemplate,
			MaxWidth:    cfg.Enrich.MaxWidth,
		}, log)
	}

	progress := logbook.NewProgress(os.Stderr, log.Emoji("🔐 ")+"Fingerprinting", stderrIsTerminal() && !c.Bool("verbose"))
	opts.Progress = progress.Update

	ws, err := workspace.Open(ctx, opts)
	progress.Done()
	if err != nil {
		provider.Close()
		return nil, err
	}
	s.ws = ws
	return s, nil
}

// Close flushes pending state and releases the provider.
func (s *session) Close() {
	if err := s.ws.Close(); err != nil {
		s.log.Error("Failed to save state: %v", err)
	}
	if err := s.provider.Close(); err != nil {
		s.log.Warn("Failed to close %s: %v", s.provider.Name(), err)
	}
	if s.client != nil {
		if u := s.client.Usage(); u.Requests > 0 {
			s.log.Info("Oracle usage: %d requests, %d prompt + %d completion tokens", u.Requests, u.PromptTokens, u.CompletionTokens)
		}
	}
}

// withSession runs fn against an open library and always closes it.
func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return outputError(err)
		}
		defer s.Close()
		if err := fn(c, s); err != nil {
			return outputError(err)
		}
		return nil
	}
}

// outputError formats error for CLI.
func outputError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	if errors.Is(err, context.Canceled) {
		return cli.Exit("interrupted", 130)
	}
	return cli.Exit(err.Error(), 1)
}

// binaryDir returns the folder holding the executable, or "" when running
// from a go-build temp directory.
func binaryDir(execPath string) string {
	// Handle symlinks
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		realPath = execPath
	}
	if strings.Contains(realPath, "go-build") || strings.HasPrefix(filepath.Base(realPath), "go-build") {
		return ""
	}
	return filepath.Dir(realPath)
}

// reviewArgs are the arguments a spawned terminal runs with: the review
// screen over the executable's folder.
func reviewArgs(exe string) []string {
	if dir := binaryDir(exe); dir != "" {
		return []string{"--dir", dir, "review"}
	}
	return []string{"review"}
}
