package procmaps

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"

	"github.com/maxgio92/xspy/pkg/symtable"
)

const deletedSuffix = " (deleted)"

// ExecutableImages returns one image per file with an executable mapping
// in pid, in address order. The load address is the start of the first
// executable mapping of the file.
func ExecutableImages(pid int) ([]symtable.Image, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open process %d", pid)
	}
	mappings, err := proc.ProcMaps()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mappings of process %d", pid)
	}

	return executableImages(mappings), nil
}

func executableImages(mappings []*procfs.ProcMap) []symtable.Image {
	seen := make(map[string]struct{})
	images := make([]symtable.Image, 0)
	for _, m := range mappings {
		if m.Perms == nil || !m.Perms.Execute {
			continue
		}
		// Skip anonymous and special mappings, like [vdso].
		if !filepath.IsAbs(m.Pathname) || strings.HasSuffix(m.Pathname, deletedSuffix) {
			continue
		}
		if _, ok := seen[m.Pathname]; ok {
			continue
		}
		seen[m.Pathname] = struct{}{}
		images = append(images, symtable.Image{
			Path:        m.Pathname,
			LoadAddress: uint64(m.StartAddr),
		})
	}

	return images
}
