// Package usage computes how many bytes a directory subtree holds.
package usage

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/IYouKnow/atlas-probe/internal/fault"
)

const op = "folder_size"

// Options tunes a traversal. The zero value walks sequentially, aborts on the
// first error and counts every hard link.
type Options struct {
	// SkipPermissionDenied turns permission errors below the root into a
	// zero contribution instead of failing the whole call.
	SkipPermissionDenied bool
	// Workers bounds how many sibling directories are walked concurrently.
	// Values below 2 walk sequentially.
	Workers int
	// DedupeHardLinks counts a file with several links once per traversal.
	DedupeHardLinks bool
}

// DefaultOptions is fail-fast, sequential, hard links counted once.
func DefaultOptions() Options {
	return Options{DedupeHardLinks: true}
}

// Aggregator sums file sizes under a root path. It holds no per-call state,
// so one Aggregator can serve concurrent calls.
type Aggregator struct {
	fs     FileSystem
	opts   Options
	logger *slog.Logger
}

// New returns an Aggregator over fsys. A nil logger discards output.
func New(fsys FileSystem, opts Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{fs: fsys, opts: opts, logger: logger}
}

// Options returns the options the aggregator was built with.
func (a *Aggregator) Options() Options { return a.opts }

// WithOptions returns a copy of a using opts.
func (a *Aggregator) WithOptions(opts Options) *Aggregator {
	return &Aggregator{fs: a.fs, opts: opts, logger: a.logger}
}

// FolderSize returns the total length of every file reachable from path.
// A path naming a file yields that file's length. Symlinks below the root are
// not followed; they count with their own length.
func (a *Aggregator) FolderSize(ctx context.Context, path string) (uint64, error) {
	if path == "" {
		return 0, fault.New(fault.NotFound, op, path, fs.ErrNotExist)
	}
	info, err := a.fs.Stat(path)
	if err != nil {
		return 0, fault.FromFS(op, path, err)
	}
	if !info.IsDir() {
		return uint64(info.Size()), nil
	}

	w := &walk{
		Aggregator: a,
		root:       path,
		visited:    map[objectKey]struct{}{},
		links:      map[objectKey]struct{}{},
	}
	w.enter(path, info)

	if a.opts.Workers < 2 {
		if err := w.dir(ctx, path); err != nil {
			return 0, err
		}
		return w.total.Load(), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	w.group = g
	g.Go(func() error { return w.dir(gctx, path) })
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return w.total.Load(), nil
}

// walk is the state of one FolderSize call.
type walk struct {
	*Aggregator
	root  string
	group *errgroup.Group
	total atomic.Uint64

	mu      sync.Mutex
	visited map[objectKey]struct{}
	links   map[objectKey]struct{}
}

// enter records a directory and reports whether it was new.
func (w *walk) enter(path string, info fs.FileInfo) bool {
	key := dirKey(path, info)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, seen := w.visited[key]; seen {
		return false
	}
	w.visited[key] = struct{}{}
	return true
}

// firstLink reports whether a file should be counted; only the first of
// several hard links to the same inode is.
func (w *walk) firstLink(info fs.FileInfo) bool {
	if !w.opts.DedupeHardLinks {
		return true
	}
	id, ok := identify(info)
	if !ok || id.Links < 2 {
		return true
	}
	key := objectKey{dev: id.Dev, ino: id.Ino}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, seen := w.links[key]; seen {
		return false
	}
	w.links[key] = struct{}{}
	return true
}

// fail classifies err and decides whether traversal can go on without the
// entry at path. A nil return means skip.
func (w *walk) fail(path string, err error) error {
	err = fault.FromFS(op, path, err)
	if w.opts.SkipPermissionDenied && path != w.root && fault.IsKind(err, fault.PermissionDenied) {
		w.logger.Debug("skipping unreadable entry", "path", path, "err", err)
		return nil
	}
	return err
}

func (w *walk) dir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return fault.New(fault.IOError, op, path, err)
	}
	names, err := w.fs.ReadDirNames(path)
	if err != nil {
		return w.fail(path, err)
	}

	var subtotal uint64
	for _, name := range names {
		child := filepath.Join(path, name)
		info, err := w.fs.Lstat(child)
		if err != nil {
			if err := w.fail(child, err); err != nil {
				return err
			}
			continue
		}

		if !info.IsDir() {
			if w.firstLink(info) {
				subtotal += uint64(info.Size())
			}
			continue
		}
		if !w.enter(child, info) {
			w.logger.Debug("directory already visited", "path", child)
			continue
		}
		if w.group != nil && w.group.TryGo(func() error { return w.dir(ctx, child) }) {
			continue
		}
		if err := w.dir(ctx, child); err != nil {
			return err
		}
	}
	w.total.Add(subtotal)
	return nil
}
