//go:build unix

package usage

import "syscall"

func sysIdentity(sys any) (Identity, bool) {
	st, ok := sys.(*syscall.Stat_t)
	if !ok || st == nil {
		return Identity{}, false
	}
	return Identity{
		Dev:   uint64(st.Dev),   //nolint:unconvert // int32 on darwin
		Ino:   uint64(st.Ino),   //nolint:unconvert
		Links: uint64(st.Nlink), //nolint:unconvert // uint16 on darwin, uint32 on arm64
	}, true
}
