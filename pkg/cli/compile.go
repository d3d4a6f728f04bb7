package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/platinummonkey/sprocket/pkg/compiler"
	"github.com/platinummonkey/sprocket/pkg/config"
	"github.com/platinummonkey/sprocket/pkg/dispatch"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/source"
	"github.com/platinummonkey/sprocket/pkg/targets/descriptor"
)

func newCompileCommand() *Command {
	cmd := &Command{
		Name:        "compile",
		Description: "Compile proto files per the sprocket.yaml manifest",
		Flags:       flag.NewFlagSet("compile", flag.ExitOnError),
		Run:         runCompile,
	}

	cmd.Flags.String("manifest", "sprocket.yaml", "Path to the compile manifest")
	cmd.Flags.String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags.Bool("watch", false, "Recompile when proto files under the source path change")
	cmd.Flags.Int("watch-delay", 2, "Seconds to wait after a change before recompiling")

	return cmd
}

func runCompile(args []string) error {
	cmd := newCompileCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	manifest := cmd.Flags.Lookup("manifest").Value.String()
	levelName := cmd.Flags.Lookup("log-level").Value.String()
	watch := cmd.Flags.Lookup("watch").Value.String() == "true"
	delay := cmd.Flags.Lookup("watch-delay").Value.(flag.Getter).Get().(int)

	logger := observability.NewLogger(parseLogLevel(levelName), os.Stderr)

	cfg, err := loadManifest(manifest)
	if err != nil {
		return err
	}

	if watch {
		return watchAndCompile(cfg, logger, delay)
	}
	return compileOnce(cfg, logger)
}

// loadManifest reads the manifest, falling back to defaults when it is absent
func loadManifest(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// compileOnce runs one full pipeline pass and writes the target outputs
func compileOnce(cfg *config.Config, logger *observability.Logger) error {
	targets, writers := buildTargets(cfg)

	c := compiler.New(source.NewOSFilesystem(), logger)
	if err := c.Run(context.Background(), cfg, targets); err != nil {
		return err
	}

	for _, w := range writers {
		data, err := w.Bytes()
		if err != nil {
			return err
		}
		if dir := filepath.Dir(w.Out()); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(w.Out(), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", w.Out(), err)
		}
		logger.WithField("out", w.Out()).Info("wrote descriptor set")
	}
	return nil
}

// buildTargets constructs the configured backends in manifest order
func buildTargets(cfg *config.Config) ([]dispatch.Target, []*descriptor.Target) {
	var targets []dispatch.Target
	var writers []*descriptor.Target
	for _, tc := range cfg.Targets {
		switch tc.Type {
		case "descriptor":
			t := descriptor.New(tc.Out, tc.Elements)
			targets = append(targets, t)
			writers = append(writers, t)
		}
	}
	return targets, writers
}

// parseLogLevel maps a flag value to a log level, defaulting to info
func parseLogLevel(name string) observability.LogLevel {
	switch name {
	case "debug":
		return observability.DebugLevel
	case "warn":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}
