//go:build !linux

package procmaps

import (
	"github.com/maxgio92/xspy/pkg/symtable"
)

func ExecutableImages(pid int) ([]symtable.Image, error) {
	return nil, ErrUnsupportedPlatform
}
