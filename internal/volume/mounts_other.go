//go:build !linux && !darwin && !freebsd && !windows

package volume

import (
	"context"
	"errors"
	"runtime"
)

var errUnsupported = errors.New("volume enumeration is not supported on " + runtime.GOOS)

func (systemEnumerator) Mounts(context.Context) ([]Mount, error) {
	return nil, errUnsupported
}

func statfs(string) (Usage, error) {
	return Usage{}, errUnsupported
}
