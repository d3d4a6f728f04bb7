package compiler

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sprocket/pkg/config"
	"github.com/platinummonkey/sprocket/pkg/dispatch"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/schema"
	"github.com/platinummonkey/sprocket/pkg/source"
)

// recordingTarget captures the qualified names handed to it
type recordingTarget struct {
	name     string
	elements []string
	handled  []string
}

func (r *recordingTarget) Name() string       { return r.name }
func (r *recordingTarget) Elements() []string { return r.elements }

func (r *recordingTarget) NewHandler(s *schema.Schema, fs source.Filesystem, logger *observability.Logger) (dispatch.Handler, error) {
	return r, nil
}

func (r *recordingTarget) Handle(t schema.Type) error {
	r.handled = append(r.handled, t.QualifiedName())
	return nil
}

func newCompiler(t *testing.T, files map[string]string) (*Compiler, *bytes.Buffer) {
	t.Helper()
	memFs := afero.NewMemMapFs()
	for name, text := range files {
		require.NoError(t, afero.WriteFile(memFs, name, []byte(text), 0644))
	}
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	return New(source.NewFilesystem(memFs), logger), &buf
}

func TestRunSingleDirectoryRoot(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
message M { int32 x = 1; }`,
	})

	target := &recordingTarget{name: "first", elements: []string{"*"}}
	cfg := &config.Config{
		SourcePath:       []string{"proto"},
		TreeShakingRoots: []string{"*"},
	}

	err := c.Run(context.Background(), cfg, []dispatch.Target{target})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.M"}, target.handled)
}

func TestRunCrossFileImport(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
import "q.proto";
message M { q.N n = 1; }`,
		"proto/q.proto": `syntax = "proto3";
package q;
message N {}`,
	})

	target := &recordingTarget{name: "all", elements: []string{"*"}}
	cfg := &config.Config{
		SourcePath:       []string{"proto"},
		TreeShakingRoots: []string{"*"},
	}

	err := c.Run(context.Background(), cfg, []dispatch.Target{target})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.M", "q.N"}, target.handled)
}

func TestRunProtoPathOnly(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"src/a.proto": `syntax = "proto3";
package p;
import "q.proto";
message M { q.N n = 1; }`,
		"deps/q.proto": `syntax = "proto3";
package q;
message N {}`,
	})

	target := &recordingTarget{name: "all", elements: []string{"*"}}
	cfg := &config.Config{
		SourcePath:       []string{"src"},
		ProtoPath:        []string{"deps"},
		TreeShakingRoots: []string{"*"},
	}

	err := c.Run(context.Background(), cfg, []dispatch.Target{target})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.M"}, target.handled)
}

func TestRunTreeShaking(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
message Keep {}
message Drop {}`,
		"proto/v.proto": `syntax = "proto3";
package vitess;
message X {}`,
	})

	target := &recordingTarget{name: "all", elements: []string{"*"}}
	cfg := &config.Config{
		SourcePath:         []string{"proto"},
		TreeShakingRoots:   []string{"*"},
		TreeShakingRubbish: []string{"vitess.*"},
	}

	err := c.Run(context.Background(), cfg, []dispatch.Target{target})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.Keep", "p.Drop"}, target.handled)
}

func TestRunUnusedRubbishDiagnostic(t *testing.T) {
	c, buf := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
message M {}`,
	})

	target := &recordingTarget{name: "all", elements: []string{"*"}}
	cfg := &config.Config{
		SourcePath:         []string{"proto"},
		TreeShakingRoots:   []string{"*"},
		TreeShakingRubbish: []string{"nonexistent.*"},
	}

	err := c.Run(context.Background(), cfg, []dispatch.Target{target})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Unused element in treeShakingRubbish: nonexistent.*")
	assert.Equal(t, []string{"p.M"}, target.handled)
}

func TestRunMultipleTargetsLeftover(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
message A {}
message B {}`,
	})

	first := &recordingTarget{name: "first", elements: []string{"p.A"}}
	second := &recordingTarget{name: "second", elements: []string{"*"}}
	cfg := &config.Config{
		SourcePath:       []string{"proto"},
		TreeShakingRoots: []string{"*"},
	}

	err := c.Run(context.Background(), cfg, []dispatch.Target{first, second})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.A"}, first.handled)
	assert.Equal(t, []string{"p.B"}, second.handled)
}

func TestRunDeterministicDispatchOrder(t *testing.T) {
	files := map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
message A {}
message B {}`,
	}
	cfgFor := func() *config.Config {
		return &config.Config{
			SourcePath:         []string{"proto"},
			TreeShakingRoots:   []string{"*"},
			TreeShakingRubbish: []string{"ghost.*"},
		}
	}

	var orders [][]string
	for i := 0; i < 3; i++ {
		c, _ := newCompiler(t, files)
		target := &recordingTarget{name: "all", elements: []string{"*"}}
		require.NoError(t, c.Run(context.Background(), cfgFor(), []dispatch.Target{target}))
		orders = append(orders, target.handled)
	}
	assert.Equal(t, orders[0], orders[1])
	assert.Equal(t, orders[1], orders[2])
}

func TestRunLinkFailurePropagates(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3";
package p;
message M { Missing x = 1; }`,
	})

	cfg := &config.Config{
		SourcePath:       []string{"proto"},
		TreeShakingRoots: []string{"*"},
	}

	err := c.Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to resolve Missing")
}

func TestRunInvalidRules(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3"; message M {}`,
	})

	cfg := &config.Config{
		SourcePath:       []string{"proto"},
		TreeShakingRoots: []string{"bad rule"},
	}

	err := c.Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tree-shaking")
}

func TestRunCancelledBetweenPasses(t *testing.T) {
	c, _ := newCompiler(t, map[string]string{
		"proto/a.proto": `syntax = "proto3"; message M {}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Config{
		SourcePath:       []string{"proto"},
		TreeShakingRoots: []string{"*"},
	}
	err := c.Run(ctx, cfg, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
