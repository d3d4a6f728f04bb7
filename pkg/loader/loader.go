package loader

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/sprocket/pkg/location"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/protobuf"
	"github.com/platinummonkey/sprocket/pkg/schema"
	"github.com/platinummonkey/sprocket/pkg/source"
)

// DescriptorPath is the import path of the implicitly loaded descriptor
// definitions
const DescriptorPath = "google/protobuf/descriptor.proto"

//go:embed descriptor.proto
var descriptorProto string

// ImportNotFoundError reports an import that no source or proto path root
// satisfies
type ImportNotFoundError struct {
	Importer location.Location
	Path     string
}

func (e *ImportNotFoundError) Error() string {
	return fmt.Sprintf("%s: import %q not found in source path or proto path", e.Importer, e.Path)
}

// DuplicatePathError reports two roots contributing conflicting files for
// the same import path
type DuplicatePathError struct {
	Path   string
	First  location.Location
	Second location.Location
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("import path %q is provided by both %s and %s", e.Path, e.First, e.Second)
}

// Loader resolves the transitive import closure of the source path
type Loader struct {
	// Source holds the roots whose files are eligible for generation
	Source *source.Set
	// Proto holds the roots loaded only to satisfy imports; may be nil
	Proto  *source.Set
	Logger *observability.Logger
}

// Result is the outcome of a load: every parsed file plus the subset of
// paths that originated under source-path roots
type Result struct {
	// Files holds every loaded file in deterministic order: source files in
	// enumeration order, then imports in discovery order
	Files []*schema.ProtoFile
	// SourcePaths marks the import paths eligible for code generation
	SourcePaths map[string]bool
}

// workItem is one pending import with the location that requested it
type workItem struct {
	path     string
	importer location.Location
}

// Load enumerates, parses, and transitively resolves imports. Parsing of the
// enumerated source files runs in parallel; results keep enumeration order.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	enumerated, err := l.Source.Enumerate()
	if err != nil {
		return nil, err
	}
	if err := checkDuplicates(enumerated); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := parseAll(ctx, enumerated)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SourcePaths: make(map[string]bool),
	}
	loaded := make(map[string]bool)
	var queue []workItem

	for i, file := range parsed {
		path := enumerated[i].Location.Path
		result.Files = append(result.Files, file)
		result.SourcePaths[path] = true
		loaded[path] = true
		for _, imp := range file.Imports {
			queue = append(queue, workItem{path: imp.Path, importer: imp.Pos})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if loaded[item.path] {
			continue
		}

		file, err := l.loadImport(item)
		if err != nil {
			return nil, err
		}
		loaded[item.path] = true
		result.Files = append(result.Files, file)
		for _, imp := range file.Imports {
			queue = append(queue, workItem{path: imp.Path, importer: imp.Pos})
		}
	}

	if !loaded[DescriptorPath] {
		file, err := parseDescriptor()
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, file)
	}

	if l.Logger != nil {
		l.Logger.Debugf("loaded %d file(s), %d from the source path", len(result.Files), len(result.SourcePaths))
	}
	return result, nil
}

// loadImport locates one import, searching the source path roots before the
// proto path roots
func (l *Loader) loadImport(item workItem) (*schema.ProtoFile, error) {
	loc, text, err := l.Source.Locate(item.path)
	if err != nil && errors.Is(err, source.ErrNotFound) && l.Proto != nil {
		loc, text, err = l.Proto.Locate(item.path)
	}
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			if item.path == DescriptorPath {
				return parseDescriptor()
			}
			return nil, &ImportNotFoundError{Importer: item.importer, Path: item.path}
		}
		return nil, err
	}
	return protobuf.Parse(loc, text)
}

// parseDescriptor parses the embedded descriptor definitions
func parseDescriptor() (*schema.ProtoFile, error) {
	return protobuf.Parse(location.New("", DescriptorPath), descriptorProto)
}

// parseAll parses the enumerated files concurrently, reporting the first
// failure in enumeration order so diagnostics stay deterministic
func parseAll(ctx context.Context, files []source.File) ([]*schema.ProtoFile, error) {
	parsed := make([]*schema.ProtoFile, len(files))
	errs := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range files {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			parsed[i], errs[i] = protobuf.Parse(files[i].Location, files[i].Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// checkDuplicates rejects two roots contributing the same import path
func checkDuplicates(files []source.File) error {
	seen := make(map[string]location.Location)
	for _, f := range files {
		if first, ok := seen[f.Location.Path]; ok {
			return &DuplicatePathError{
				Path:   f.Location.Path,
				First:  first,
				Second: f.Location,
			}
		}
		seen[f.Location.Path] = f.Location
	}
	return nil
}
