package usage

import (
	"io/fs"
	"path/filepath"
)

// Identity is the device/inode pair of a filesystem object plus its hard
// link count. FileSystem implementations that are not backed by the OS can
// return a *Identity from FileInfo.Sys to take part in cycle and hard link
// detection.
type Identity struct {
	Dev   uint64
	Ino   uint64
	Links uint64
}

type objectKey struct {
	dev, ino uint64
	path     string
}

func identify(info fs.FileInfo) (Identity, bool) {
	if id, ok := info.Sys().(*Identity); ok && id != nil {
		return *id, true
	}
	return sysIdentity(info.Sys())
}

// dirKey identifies a directory for the visited set. Without device/inode
// information the cleaned path stands in, which still rules out revisits
// of the same path.
func dirKey(path string, info fs.FileInfo) objectKey {
	if id, ok := identify(info); ok {
		return objectKey{dev: id.Dev, ino: id.Ino}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return objectKey{path: abs}
}
