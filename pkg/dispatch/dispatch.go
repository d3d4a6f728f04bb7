package dispatch

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/sprocket/pkg/identifier"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/schema"
	"github.com/platinummonkey/sprocket/pkg/source"
)

// Handler receives the types a target claimed, one call per type. Handlers
// must not mutate the schema between invocations.
type Handler interface {
	Handle(t schema.Type) error
}

// Target describes one code-generation backend: the element rules selecting
// the types it claims, and a factory for its handler.
type Target interface {
	// Name identifies the target in logs and errors
	Name() string
	// Elements returns the rule strings selecting this target's types
	Elements() []string
	// NewHandler creates the handler for one dispatch run
	NewHandler(s *schema.Schema, fs source.Filesystem, logger *observability.Logger) (Handler, error)
}

// GenerationError marks a recoverable failure inside a target handler. The
// dispatcher logs it and continues with subsequent types; any other handler
// error aborts the run.
type GenerationError struct {
	Target  string
	Type    string
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("target %s failed to generate %s: %s", e.Target, e.Type, e.Message)
}

// Dispatcher hands each source-set type to the first target whose rules
// match it
type Dispatcher struct {
	targets []Target
	fs      source.Filesystem
	logger  *observability.Logger
}

// NewDispatcher creates a dispatcher over the configured targets
func NewDispatcher(targets []Target, fs source.Filesystem, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		targets: targets,
		fs:      fs,
		logger:  logger,
	}
}

// Dispatch walks the targets in order, claiming types out of the remaining
// set. Only types declared by files whose path is in sourcePaths are
// eligible; proto-path-only types are never dispatched. Iteration follows
// arena order, which is source enumeration order, so runs are deterministic.
func (d *Dispatcher) Dispatch(s *schema.Schema, sourcePaths map[string]bool) error {
	remaining := make([]schema.Type, 0, s.Len())
	for idx, t := range s.Types() {
		if !sourcePaths[s.FileOf(idx).Pos.Path] {
			continue
		}
		if isMapEntry(t) {
			// synthetic map entry messages belong to their enclosing field
			continue
		}
		remaining = append(remaining, t)
	}

	for _, target := range d.targets {
		rules, err := identifier.New(target.Elements(), nil)
		if err != nil {
			return fmt.Errorf("target %s: %w", target.Name(), err)
		}

		handler, err := target.NewHandler(s, d.fs, d.logger)
		if err != nil {
			return fmt.Errorf("target %s: %w", target.Name(), err)
		}

		var leftovers []schema.Type
		for _, t := range remaining {
			if !rules.IncludesType(t.QualifiedName()) {
				leftovers = append(leftovers, t)
				continue
			}
			if err := d.handle(target, handler, t); err != nil {
				return err
			}
		}
		remaining = leftovers

		for _, rule := range rules.UnusedIncludes() {
			d.logger.Info(fmt.Sprintf("Unused element in target elements: %s", rule))
		}
	}

	if len(remaining) > 0 {
		d.logger.Debugf("%d type(s) claimed by no target", len(remaining))
	}
	return nil
}

// isMapEntry reports whether a type is a desugared map entry message
func isMapEntry(t schema.Type) bool {
	msg, ok := t.(*schema.MessageType)
	if !ok {
		return false
	}
	opt := schema.FindOption(msg.Options, "map_entry")
	return opt != nil && opt.Value == "true"
}

// handle invokes one handler call, absorbing recoverable generation errors
func (d *Dispatcher) handle(target Target, handler Handler, t schema.Type) error {
	err := handler.Handle(t)
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		d.logger.WithError(genErr).Warn(fmt.Sprintf("target %s skipped %s", target.Name(), t.QualifiedName()))
		return nil
	}
	return fmt.Errorf("target %s: %w", target.Name(), err)
}
