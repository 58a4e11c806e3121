package assetservice

import (
	"log/slog"

	"github.com/starford/mediakeep/internal/audit"
	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/derivative"
	"github.com/starford/mediakeep/internal/gc"
	"github.com/starford/mediakeep/internal/importer"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/relocate"
	"github.com/starford/mediakeep/internal/storage"
)

// Settings describes how to build the components of a Service.
type Settings struct {
	Rules     *pathrules.Rules
	Files     storage.Provider
	Content   content.Store
	Inventory inventory.Store

	Importer        importer.Config
	ImporterOptions []importer.Option

	DerivedDir string
	Presets    []derivative.Preset
	Encoders   derivative.Encoders

	MaxConflictAttempts int
	Protect             []string
	MaxExamples         int
}

// Assemble wires every component from s and returns the service.
func Assemble(s Settings, events Notifier, logger *slog.Logger) (*Service, error) {
	gen := derivative.NewGenerator(s.Rules, s.Files, s.DerivedDir, s.Presets, s.Encoders, logger)
	planner := relocate.NewPlanner(s.Rules, s.Files, s.MaxConflictAttempts)
	collector, err := gc.New(s.Rules, s.Files, s.Content, s.Inventory, gen.Dir, s.Protect, logger)
	if err != nil {
		return nil, err
	}
	c := Components{
		Rules:     s.Rules,
		Files:     s.Files,
		Content:   s.Content,
		Inventory: s.Inventory,
		Importer:  importer.New(s.Importer, s.Rules, s.Files, s.Inventory, logger, s.ImporterOptions...),
		Generator: gen,
		Planner:   planner,
		Executor:  relocate.NewExecutor(s.Rules, s.Files, s.Content, s.Inventory, logger),
		Auditor:   audit.New(s.Rules, s.Files, s.Content, planner, s.MaxExamples),
		Collector: collector,
	}
	return New(c, events, logger), nil
}
