package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/dataprep/internal/config"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/hcl"
	"github.com/vk/dataprep/internal/registry"
	"github.com/vk/dataprep/internal/source"
	"github.com/vk/dataprep/internal/store"
	"github.com/vk/dataprep/internal/yamlconfig"
)

// Version is recorded on every written dataset. It is set at build time.
var Version = "dev"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger    *slog.Logger
	registry  *registry.Registry
	config    *config.Config
	appConfig *Config
	opener    source.Opener
	writer    store.Writer
	now       func() time.Time
}

// Option customizes an App.
type Option func(*App)

// WithOpener replaces the netCDF source opener.
func WithOpener(o source.Opener) Option { return func(a *App) { a.opener = o } }

// WithWriter replaces the netCDF writer.
func WithWriter(w store.Writer) Option { return func(a *App) { a.writer = w } }

// WithClock replaces the clock used for the created_on attribute.
func WithClock(now func() time.Time) Option { return func(a *App) { a.now = now } }

// WithModules registers modules instead of the core modules.
func WithModules(modules ...registry.Module) Option {
	return func(a *App) {
		a.registry = registry.New()
		for _, mod := range modules {
			mod.Register(a.registry)
		}
	}
}

// LoaderFor picks the configuration loader for path by its extension.
func LoaderFor(path string) config.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlconfig.NewLoader()
	default:
		return hcl.NewLoader()
	}
}

// NewApp is the constructor for the main application. It loads and
// validates the build configuration and panics if that fails, so that the
// entrypoint can report startup errors in one place.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, opts ...Option) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		logger:    logger,
		appConfig: appConfig,
		opener:    source.NetCDF{},
		writer:    store.NetCDF{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		WithModules(coreModules...)(a)
	}
	logger.Debug("All Go modules registered.", "functions", a.registry.Names())

	// A malformed function definition is a programmer error.
	if err := a.registry.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	cfg, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	if err := a.registry.ValidateConfig(ctx, cfg); err != nil {
		panic(err)
	}
	logger.Debug("Configuration loaded and validated.", "inputs", len(cfg.Inputs))
	a.config = cfg
	return a
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// BuildConfig returns the loaded build configuration.
func (a *App) BuildConfig() *config.Config {
	return a.config
}
