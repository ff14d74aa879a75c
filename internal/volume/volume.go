// Package volume reports the capacity of mounted volumes.
package volume

import (
	"context"
	"log/slog"

	"github.com/IYouKnow/atlas-probe/internal/fault"
)

const op = "drive_size"

// Mount is one entry of the host's mount table.
type Mount struct {
	MountPoint string `json:"mount_point"`
	Device     string `json:"device"`
	FSType     string `json:"fs_type"`
}

// Usage is the capacity of a filesystem in bytes. Available counts only the
// space an unprivileged process may use; Free includes reserved blocks.
type Usage struct {
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
	Free      uint64 `json:"free"`
}

// Used is the space taken on the filesystem.
func (u Usage) Used() uint64 {
	if u.Free > u.Total {
		return 0
	}
	return u.Total - u.Free
}

func (u Usage) normalize() Usage {
	if u.Free > u.Total {
		u.Free = u.Total
	}
	if u.Available > u.Total {
		u.Available = u.Total
	}
	return u
}

// Volume is a mount together with its capacity.
type Volume struct {
	Mount
	Usage
	Used uint64 `json:"used"`
}

// Enumerator reads the mount table and per-volume capacity.
type Enumerator interface {
	Mounts(ctx context.Context) ([]Mount, error)
	Usage(mountPoint string) (Usage, error)
}

// Reader answers capacity questions against an Enumerator.
type Reader struct {
	enum   Enumerator
	logger *slog.Logger
}

// NewReader returns a Reader. A nil logger discards output.
func NewReader(enum Enumerator, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{enum: enum, logger: logger}
}

// DriveSize returns the total and available bytes of the volume mounted
// exactly at mountPath.
func (r *Reader) DriveSize(ctx context.Context, mountPath string) (total, available uint64, err error) {
	mounts, err := r.enum.Mounts(ctx)
	if err != nil {
		return 0, 0, fault.FromFS(op, mountPath, err)
	}
	for _, m := range mounts {
		if m.MountPoint != mountPath {
			continue
		}
		u, err := r.enum.Usage(m.MountPoint)
		if err != nil {
			return 0, 0, fault.FromFS(op, mountPath, err)
		}
		u = u.normalize()
		return u.Total, u.Available, nil
	}
	return 0, 0, fault.New(fault.NotFound, op, mountPath, nil)
}

// Volumes lists every mounted volume whose capacity can be read. Pseudo
// filesystems that refuse statfs are left out.
func (r *Reader) Volumes(ctx context.Context) ([]Volume, error) {
	mounts, err := r.enum.Mounts(ctx)
	if err != nil {
		return nil, fault.FromFS("volumes", "", err)
	}
	vols := make([]Volume, 0, len(mounts))
	for _, m := range mounts {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.IOError, "volumes", "", err)
		}
		u, err := r.enum.Usage(m.MountPoint)
		if err != nil {
			r.logger.Debug("skipping volume", "mount", m.MountPoint, "err", err)
			continue
		}
		u = u.normalize()
		vols = append(vols, Volume{Mount: m, Usage: u, Used: u.Used()})
	}
	return vols, nil
}

// PathUsage returns the capacity of the filesystem holding path, which need
// not be a mount point itself.
func PathUsage(path string) (Usage, error) {
	u, err := statfs(path)
	if err != nil {
		return Usage{}, fault.FromFS("path_usage", path, err)
	}
	return u.normalize(), nil
}

type systemEnumerator struct{}

// System returns the host's mount table.
func System() Enumerator { return systemEnumerator{} }

func (systemEnumerator) Usage(mountPoint string) (Usage, error) {
	return statfs(mountPoint)
}
