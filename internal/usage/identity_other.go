//go:build !unix

package usage

// sysIdentity has nothing to offer where FileInfo.Sys does not expose
// inode numbers; directories fall back to path identity and hard links are
// counted per path.
func sysIdentity(any) (Identity, bool) {
	return Identity{}, false
}
