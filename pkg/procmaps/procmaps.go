// Package procmaps discovers the executable images mapped by a process.
package procmaps

import (
	"github.com/pkg/errors"
)

var (
	ErrImageNotMapped      = errors.New("image not mapped")
	ErrUnsupportedPlatform = errors.New("process mappings are not available on this platform")
)

// LoadAddress returns the start of the first executable mapping of path
// in the address space of pid.
func LoadAddress(pid int, path string) (uint64, error) {
	images, err := ExecutableImages(pid)
	if err != nil {
		return 0, err
	}
	for _, image := range images {
		if image.Path == path {
			return image.LoadAddress, nil
		}
	}

	return 0, errors.Wrapf(ErrImageNotMapped, "%s in process %d", path, pid)
}
