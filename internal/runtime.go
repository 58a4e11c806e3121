package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/derivative"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/mcpserver"
	"github.com/starford/mediakeep/internal/storage"
)

// Runtime holds the opened stores and the assembled asset service.
type Runtime struct {
	Config  *Config
	Logger  *slog.Logger
	Uploads *storage.FS
	Content *content.FileStore
	DB      *inventory.DB
	Service *assetservice.Service
}

// Close releases the inventory database.
func (rt *Runtime) Close() error {
	return rt.DB.Close()
}

func (a *application) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// open creates the directories and stores named by cfg and wires the
// service. events may be nil.
func open(cfg *Config, logger *slog.Logger, events assetservice.Notifier) (*Runtime, error) {
	for _, dir := range []string{cfg.Uploads.Root, cfg.Content.Path} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	uploads, err := storage.NewFS(cfg.Uploads.Root)
	if err != nil {
		return nil, fmt.Errorf("init uploads storage: %w", err)
	}
	contentFS, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("init content storage: %w", err)
	}

	db, err := inventory.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init inventory: %w", err)
	}

	store := content.NewFileStore(contentFS)
	svc, err := assetservice.Assemble(assetservice.Settings{
		Rules:               cfg.Uploads.Rules(),
		Files:               uploads,
		Content:             store,
		Inventory:           db,
		Importer:            cfg.Importer.ImporterSettings(),
		DerivedDir:          cfg.Uploads.DerivedDir,
		Presets:             cfg.Derivatives.Presets,
		Encoders:            derivative.DefaultEncoders(cfg.Derivatives.JPEGQuality, cfg.Derivatives.AVIFQuality, cfg.Derivatives.AVIFSpeed),
		MaxConflictAttempts: cfg.Relocation.MaxConflictAttempts,
		Protect:             cfg.GC.Protect,
		MaxExamples:         cfg.Audit.MaxExamples,
	}, events, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("assemble service: %w", err)
	}

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Uploads: uploads,
		Content: store,
		DB:      db,
		Service: svc,
	}, nil
}

// Open builds a Runtime for one-shot commands. Callers must Close it.
func Open(opts ...Option) (*Runtime, error) {
	app := newApplication(opts)
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return open(app.config, app.logger(), nil)
}

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()
	slog.SetDefault(logger)

	rt, err := open(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.Service.Reconcile(ctx); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(rt.Service, app.version).ServeStdio()
}
