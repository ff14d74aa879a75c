package usage

import (
	"io/fs"

	"github.com/spf13/afero"
)

// FileSystem is the read-only view of a filesystem the aggregator walks.
type FileSystem interface {
	// Stat returns metadata for name, following symlinks.
	Stat(name string) (fs.FileInfo, error)
	// Lstat returns metadata for name without following a final symlink.
	Lstat(name string) (fs.FileInfo, error)
	// ReadDirNames lists the entry names of directory name in any order.
	ReadDirNames(name string) ([]string, error)
}

type aferoFS struct {
	fs afero.Fs
}

// FromAfero adapts an afero filesystem. Backends without symlink support
// answer Lstat with Stat.
func FromAfero(fsys afero.Fs) FileSystem {
	return aferoFS{fs: fsys}
}

// OS returns the host filesystem, wrapped so nothing can write through it.
func OS() FileSystem {
	return FromAfero(afero.NewReadOnlyFs(afero.NewOsFs()))
}

func (a aferoFS) Stat(name string) (fs.FileInfo, error) {
	return a.fs.Stat(name)
}

func (a aferoFS) Lstat(name string) (fs.FileInfo, error) {
	if l, ok := a.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return a.fs.Stat(name)
}

func (a aferoFS) ReadDirNames(name string) ([]string, error) {
	f, err := a.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}
