package source

import (
	"io"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Filesystem is the read-only view of the host filesystem the compiler core
// consumes. It is injected by the caller; the core never writes through it.
type Filesystem interface {
	// Open opens a file for reading
	Open(name string) (io.ReadCloser, error)
	// List returns the sorted entry names of a directory
	List(name string) ([]string, error)
	// IsDirectory reports whether the path names a directory
	IsDirectory(name string) bool
	// IsArchive reports whether the path names a zip-format archive
	IsArchive(name string) bool
	// Exists reports whether the path names a file or directory
	Exists(name string) bool
}

// archiveExtensions are the archive suffixes treated as zip containers
var archiveExtensions = []string{".zip", ".jar", ".srcjar"}

// aferoFilesystem adapts an afero.Fs to the Filesystem interface
type aferoFilesystem struct {
	fs afero.Fs
}

// NewFilesystem wraps an afero.Fs in the compiler's Filesystem interface
func NewFilesystem(fs afero.Fs) Filesystem {
	return &aferoFilesystem{fs: fs}
}

// NewOSFilesystem returns a Filesystem over the real OS filesystem,
// wrapped read-only
func NewOSFilesystem() Filesystem {
	return NewFilesystem(afero.NewReadOnlyFs(afero.NewOsFs()))
}

// Open opens a file for reading
func (a *aferoFilesystem) Open(name string) (io.ReadCloser, error) {
	return a.fs.Open(name)
}

// List returns the sorted entry names of a directory
func (a *aferoFilesystem) List(name string) ([]string, error) {
	infos, err := afero.ReadDir(a.fs, name)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	sort.Strings(names)
	return names, nil
}

// IsDirectory reports whether the path names a directory
func (a *aferoFilesystem) IsDirectory(name string) bool {
	ok, err := afero.IsDir(a.fs, name)
	return err == nil && ok
}

// IsArchive reports whether the path names a zip-format archive
func (a *aferoFilesystem) IsArchive(name string) bool {
	if a.IsDirectory(name) || !a.Exists(name) {
		return false
	}
	ext := strings.ToLower(path.Ext(name))
	for _, archiveExt := range archiveExtensions {
		if ext == archiveExt {
			return true
		}
	}
	return false
}

// Exists reports whether the path names a file or directory
func (a *aferoFilesystem) Exists(name string) bool {
	ok, err := afero.Exists(a.fs, name)
	return err == nil && ok
}
