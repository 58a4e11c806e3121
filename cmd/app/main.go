package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mediakeep/internal"
	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/importer"
	pkgconfig "github.com/starford/mediakeep/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(cmd.String("config"), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", cmd.String("config")))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr))
}

// withService opens the stores for a one-shot command and prints the value
// fn returns as indented JSON.
func withService(fn func(ctx context.Context, cmd *cli.Command, svc *assetservice.Service) (any, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
		if err != nil {
			return err
		}
		defer rt.Close()

		out, err := fn(ctx, cmd, rt.Service)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

func relocateAction(ctx context.Context, cmd *cli.Command, svc *assetservice.Service) (any, error) {
	if !cmd.Bool("apply") {
		return svc.PlanRelocation(ctx)
	}
	plan, res, err := svc.ApplyRelocation(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plan": plan, "result": res}, nil
}

func auditAction(ctx context.Context, _ *cli.Command, svc *assetservice.Service) (any, error) {
	return svc.Audit(ctx)
}

func gcAction(ctx context.Context, cmd *cli.Command, svc *assetservice.Service) (any, error) {
	return svc.CollectGarbage(ctx, cmd.Bool("apply"))
}

func reconcileAction(ctx context.Context, _ *cli.Command, svc *assetservice.Service) (any, error) {
	n, err := svc.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{"backfilled": n}, nil
}

func importAction(ctx context.Context, cmd *cli.Command, svc *assetservice.Service) (any, error) {
	if cmd.Args().Len() != 1 {
		return nil, fmt.Errorf("import: expected exactly one URL argument")
	}
	opts := importer.Options{
		Folder: cmd.String("folder"),
		Base:   cmd.String("base"),
	}
	if cmd.Bool("reuse") {
		opts.Reuse = importer.ReuseIfValid
	}
	return svc.Import(ctx, cmd.Args().First(), opts)
}

func deriveAction(ctx context.Context, cmd *cli.Command, svc *assetservice.Service) (any, error) {
	if cmd.Args().Len() != 1 {
		return nil, fmt.Errorf("derive: expected exactly one asset id")
	}
	return svc.Derive(ctx, cmd.Args().First())
}

func applyFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "apply",
		Usage: "Perform the changes instead of printing a preview",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "mediakeep",
		Usage:   "Asset lifecycle manager for a content site's uploads folder",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the admin HTTP API and serve uploads",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: runMCP,
			},
			{
				Name:   "relocate",
				Usage:  "Plan (or with --apply, perform) moves of assets into canonical folders",
				Flags:  []cli.Flag{applyFlag()},
				Action: withService(relocateAction),
			},
			{
				Name:   "audit",
				Usage:  "Report missing, misplaced and invalid asset references",
				Action: withService(auditAction),
			},
			{
				Name:   "gc",
				Usage:  "Preview (or with --apply, delete) unreferenced inventory files",
				Flags:  []cli.Flag{applyFlag()},
				Action: withService(gcAction),
			},
			{
				Name:   "reconcile",
				Usage:  "Backfill inventory entries for referenced files",
				Action: withService(reconcileAction),
			},
			{
				Name:      "import",
				Usage:     "Download a remote image into the uploads root",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Usage: "Target folder relative to the uploads root"},
					&cli.StringFlag{Name: "base", Usage: "Stable file name without extension"},
					&cli.BoolFlag{Name: "reuse", Usage: "Keep an existing valid file named base"},
				},
				Action: withService(importAction),
			},
			{
				Name:      "derive",
				Usage:     "Regenerate derivatives for an asset",
				ArgsUsage: "<id>",
				Action:    withService(deriveAction),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
