package compiler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sprocket/pkg/config"
	"github.com/platinummonkey/sprocket/pkg/dispatch"
	"github.com/platinummonkey/sprocket/pkg/identifier"
	"github.com/platinummonkey/sprocket/pkg/linker"
	"github.com/platinummonkey/sprocket/pkg/loader"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/pruner"
	"github.com/platinummonkey/sprocket/pkg/source"
)

// Compiler runs the schema compilation pipeline over an injected filesystem
type Compiler struct {
	fs     source.Filesystem
	logger *observability.Logger
}

// New creates a compiler over the given filesystem and logger
func New(fs source.Filesystem, logger *observability.Logger) *Compiler {
	return &Compiler{
		fs:     fs,
		logger: logger,
	}
}

// Run executes one compilation: load, link, prune, dispatch. Cancellation is
// honored at pass boundaries. The targets receive their claimed types before
// Run returns.
func (c *Compiler) Run(ctx context.Context, cfg *config.Config, targets []dispatch.Target) error {
	logger := c.logger.WithField("run_id", uuid.New().String())

	sourceSet, err := source.NewSet(c.fs, cfg.SourcePath)
	if err != nil {
		return err
	}
	defer sourceSet.Close()

	var protoSet *source.Set
	if len(cfg.ProtoPath) > 0 {
		protoSet, err = source.NewSet(c.fs, cfg.ProtoPath)
		if err != nil {
			return err
		}
		defer protoSet.Close()
	}

	load := &loader.Loader{
		Source: sourceSet,
		Proto:  protoSet,
		Logger: logger,
	}
	loaded, err := load.Load(ctx)
	if err != nil {
		return err
	}
	logger.WithField("files", len(loaded.Files)).Info("loaded proto files")
	if err := ctx.Err(); err != nil {
		return err
	}

	linked, err := linker.Link(loaded.Files)
	if err != nil {
		return err
	}
	logger.WithField("types", linked.Len()).Info("linked schema")
	if err := ctx.Err(); err != nil {
		return err
	}

	rules, err := identifier.New(cfg.TreeShakingRoots, cfg.TreeShakingRubbish)
	if err != nil {
		return fmt.Errorf("invalid tree-shaking rules: %w", err)
	}
	pruned, err := pruner.Prune(linked, rules)
	if err != nil {
		return err
	}
	if pruned != linked {
		logger.WithField("types", pruned.Len()).Info("pruned schema")
	}
	for _, rule := range rules.UnusedIncludes() {
		logger.Info(fmt.Sprintf("Unused element in treeShakingRoots: %s", rule))
	}
	for _, rule := range rules.UnusedExcludes() {
		logger.Info(fmt.Sprintf("Unused element in treeShakingRubbish: %s", rule))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(targets, c.fs, logger)
	return dispatcher.Dispatch(pruned, loaded.SourcePaths)
}
