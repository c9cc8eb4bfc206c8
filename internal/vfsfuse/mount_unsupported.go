//go:build !linux && !darwin

package vfsfuse

import (
	"fmt"
	"runtime"

	"github.com/mediacat/mediacat/internal/vfs"
)

// Mount is unavailable on this platform; go-fuse only supports Linux and
// Darwin. The Orchestrator logs and continues serving the HTTP surface.
func Mount(mountPoint string, v *vfs.VFS, allowOther bool) error {
	return fmt.Errorf("vfsfuse: FUSE mount unsupported on %s", runtime.GOOS)
}
