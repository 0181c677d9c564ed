package app

import (
	"context"
	"fmt"

	"github.com/vk/dataprep/internal/chunking"
	"github.com/vk/dataprep/internal/ctxlog"
	"github.com/vk/dataprep/internal/engine"
)

// Recreate rebuilds the inputs of the loaded configuration from the built
// dataset at RecreateFrom and writes each one to its RecreatedPath. Inputs
// already written stay in place if a later one fails.
func (a *App) Recreate(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Info("🚀 Recreating inputs...", "from", a.appConfig.RecreateFrom, "inputs", a.appConfig.RecreateInputs)

	built, err := a.opener.Open(ctx, a.appConfig.RecreateFrom)
	if err != nil {
		return fmt.Errorf("opening built dataset: %w", err)
	}
	eng := engine.New(a.registry, a.opener, a.appConfig.Workers)
	inputs, err := eng.Recreate(ctx, a.config, built, a.appConfig.RecreateInputs)
	if err != nil {
		return fmt.Errorf("recreating inputs: %w", err)
	}

	for _, in := range inputs {
		path := a.appConfig.RecreatedPath(in.Input)
		plan := chunking.NewPlan(ctx, in.Dataset, a.appConfig.RecreateChunks)
		if err := a.writer.Write(ctx, path, in.Dataset, plan); err != nil {
			return fmt.Errorf("writing input %q: %w", in.Input, err)
		}
		a.logger.Info("Wrote recreated input.", "input", in.Input, "path", path)
	}
	a.logger.Info("🏁 Recreation finished.", "inputs", len(inputs))
	return nil
}
