package app

import (
	"context"
	"fmt"

	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/engine"
	"github.com/vk/dataprep/internal/store"
)

// Run builds the dataset and writes it to the output path. Nothing is
// written when any stage fails.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	eng := engine.New(a.registry, a.opener, a.appConfig.Workers)
	a.logger.Info("🚀 Starting dataset build...", "config", a.appConfig.ConfigPath, "workers", a.appConfig.Workers)
	res, err := eng.Build(ctx, a.config)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	out := store.WithAttrs(res.Output, store.Provenance(a.config, a.now(), Version))
	if err := a.writer.Write(ctx, a.appConfig.OutputPath, out, res.Plan); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	a.logger.Info("🏁 Build finished.", "output", a.appConfig.OutputPath)
	return nil
}
