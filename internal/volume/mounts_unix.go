//go:build linux || darwin || freebsd

package volume

import (
	"context"
	"io/fs"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

func (systemEnumerator) Mounts(ctx context.Context) ([]Mount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, err
	}
	mounts := make([]Mount, 0, len(infos))
	for _, info := range infos {
		mounts = append(mounts, Mount{
			MountPoint: info.Mountpoint,
			Device:     info.Source,
			FSType:     info.FSType,
		})
	}
	return mounts, nil
}

// statfs returns the capacity of the filesystem containing path.
func statfs(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, &fs.PathError{Op: "statfs", Path: path, Err: err}
	}
	// Field widths differ per platform; widen everything before multiplying.
	bsize := uint64(st.Bsize) //nolint:unconvert
	return Usage{
		Total:     uint64(st.Blocks) * bsize, //nolint:unconvert
		Available: uint64(st.Bavail) * bsize, //nolint:unconvert
		Free:      uint64(st.Bfree) * bsize,  //nolint:unconvert
	}, nil
}
