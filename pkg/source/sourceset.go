package source

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/sprocket/pkg/location"
)

// ErrNotFound is returned by Locate when no root contains the import path
var ErrNotFound = errors.New("import path not found in any root")

// locateCacheSize bounds the in-memory cache of located file texts. Repeated
// Locate or Contains calls for the same import path are served from the cache.
const locateCacheSize = 256

// File is a source file found under a root, paired with its text
type File struct {
	Location location.Location
	Text     string
}

// rootKind discriminates the supported root flavors
type rootKind int

const (
	directoryRoot rootKind = iota
	archiveRoot
	fileRoot
)

// root is one entry of the ordered search path
type root struct {
	base string
	kind rootKind
	// entries maps archive-internal paths to their zip entries
	entries map[string]*zip.File
	// name is the base-relative file name for single-file roots
	name string
}

// Set is an ordered collection of search roots with uniform lookup. Earlier
// roots win when several contain the same import path.
type Set struct {
	fs     Filesystem
	roots  []*root
	cache  *lru.Cache[string, File]
	closed bool
}

// NewSet builds a source set over the given root paths, in order. Each root
// must name an existing directory, zip archive, or single .proto file.
func NewSet(fs Filesystem, rootPaths []string) (*Set, error) {
	cache, err := lru.New[string, File](locateCacheSize)
	if err != nil {
		return nil, err
	}

	set := &Set{
		fs:    fs,
		cache: cache,
	}

	for _, rootPath := range rootPaths {
		r, err := set.openRoot(rootPath)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.roots = append(set.roots, r)
	}

	return set, nil
}

// openRoot classifies and opens a single root path
func (s *Set) openRoot(rootPath string) (*root, error) {
	switch {
	case s.fs.IsDirectory(rootPath):
		return &root{base: rootPath, kind: directoryRoot}, nil
	case s.fs.IsArchive(rootPath):
		entries, err := s.openArchive(rootPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive %s: %w", rootPath, err)
		}
		return &root{base: rootPath, kind: archiveRoot, entries: entries}, nil
	case s.fs.Exists(rootPath):
		base := path.Dir(rootPath)
		if base == "." {
			base = ""
		}
		return &root{base: base, kind: fileRoot, name: path.Base(rootPath)}, nil
	default:
		return nil, fmt.Errorf("source root %s does not exist", rootPath)
	}
}

// openArchive reads an archive into memory and indexes its entries. The
// underlying file handle is released before returning; later reads
// decompress from the in-memory copy.
func (s *Set) openArchive(archivePath string) (map[string]*zip.File, error) {
	f, err := s.fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*zip.File, len(reader.File))
	for _, entry := range reader.File {
		if strings.HasSuffix(entry.Name, "/") {
			continue
		}
		entries[entry.Name] = entry
	}
	return entries, nil
}

// Locate returns the text of the import path found under the first root that
// contains it. The result is cached; it returns ErrNotFound when no root
// satisfies the path.
func (s *Set) Locate(importPath string) (location.Location, string, error) {
	if cached, ok := s.cache.Get(importPath); ok {
		return cached.Location, cached.Text, nil
	}

	for _, r := range s.roots {
		text, ok, err := s.read(r, importPath)
		if err != nil {
			return location.Location{}, "", err
		}
		if !ok {
			continue
		}
		loc := location.New(r.base, importPath)
		s.cache.Add(importPath, File{Location: loc, Text: text})
		return loc, text, nil
	}

	return location.Location{}, "", fmt.Errorf("%q: %w", importPath, ErrNotFound)
}

// Contains reports whether any root satisfies the import path
func (s *Set) Contains(importPath string) bool {
	_, _, err := s.Locate(importPath)
	return err == nil
}

// read attempts to read an import path from one root
func (s *Set) read(r *root, importPath string) (string, bool, error) {
	switch r.kind {
	case directoryRoot:
		full := path.Join(r.base, importPath)
		if !s.fs.Exists(full) || s.fs.IsDirectory(full) {
			return "", false, nil
		}
		text, err := s.readFile(full)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	case archiveRoot:
		entry, ok := r.entries[importPath]
		if !ok {
			return "", false, nil
		}
		text, err := readZipEntry(entry)
		if err != nil {
			return "", false, fmt.Errorf("failed to read %s from %s: %w", importPath, r.base, err)
		}
		return text, true, nil
	case fileRoot:
		if importPath != r.name {
			return "", false, nil
		}
		full := path.Join(r.base, r.name)
		text, err := s.readFile(full)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	}
	return "", false, nil
}

// Enumerate yields every .proto file under every root, walking directories
// recursively and archives as zip trees. Order is the root order, with
// lexicographic order inside each root.
func (s *Set) Enumerate() ([]File, error) {
	var files []File
	for _, r := range s.roots {
		switch r.kind {
		case directoryRoot:
			if err := s.walkDirectory(r.base, "", &files); err != nil {
				return nil, err
			}
		case archiveRoot:
			names := make([]string, 0, len(r.entries))
			for name := range r.entries {
				if strings.HasSuffix(name, ".proto") {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			for _, name := range names {
				text, err := readZipEntry(r.entries[name])
				if err != nil {
					return nil, fmt.Errorf("failed to read %s from %s: %w", name, r.base, err)
				}
				files = append(files, File{Location: location.New(r.base, name), Text: text})
			}
		case fileRoot:
			full := path.Join(r.base, r.name)
			text, err := s.readFile(full)
			if err != nil {
				return nil, err
			}
			files = append(files, File{Location: location.New(r.base, r.name), Text: text})
		}
	}
	return files, nil
}

// walkDirectory recursively collects .proto files under base/rel
func (s *Set) walkDirectory(base, rel string, files *[]File) error {
	dir := base
	if rel != "" {
		dir = path.Join(base, rel)
	}

	names, err := s.fs.List(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, name := range names {
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		full := path.Join(base, childRel)
		if s.fs.IsDirectory(full) {
			if err := s.walkDirectory(base, childRel, files); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(name, ".proto") {
			continue
		}
		text, err := s.readFile(full)
		if err != nil {
			return err
		}
		*files = append(*files, File{Location: location.New(base, childRel), Text: text})
	}
	return nil
}

// readFile reads a whole file through the injected filesystem
func (s *Set) readFile(name string) (string, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

// readZipEntry decompresses a single archive entry
func readZipEntry(entry *zip.File) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Close drops the cache and the in-memory archive indexes. The set must not
// be used after Close.
func (s *Set) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	for _, r := range s.roots {
		r.entries = nil
	}
	return nil
}
