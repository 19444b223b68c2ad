// Package symtable recovers symbol tables and the zero-initialized data
// region of ELF, Mach-O and PE images, relocated to where the image is
// loaded in a target process.
package symtable

import (
	"sort"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xspy/internal/mmap"
)

// BinaryInfo is the result of resolving one image.
// All addresses are absolute in the target process.
type BinaryInfo struct {
	Symbols map[string]uint64 `json:"symbols"`
	BSSAddr uint64            `json:"bss_addr"`
	BSSSize uint64            `json:"bss_size"`
}

// Image is an executable image mapped in a process.
type Image struct {
	Path        string
	LoadAddress uint64
}

func newBinaryInfo() *BinaryInfo {
	return &BinaryInfo{Symbols: make(map[string]uint64)}
}

// Lookup returns the address of the symbol name.
func (b *BinaryInfo) Lookup(name string) (uint64, error) {
	if len(b.Symbols) == 0 {
		return 0, ErrSymTableEmpty
	}
	addr, ok := b.Symbols[name]
	if !ok {
		return 0, errors.Wrap(ErrSymNotFound, name)
	}

	return addr, nil
}

// SymbolNames returns the sorted symbol names.
func (b *BinaryInfo) SymbolNames() []string {
	names := make([]string, 0, len(b.Symbols))
	for name := range b.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// imageParser extracts a BinaryInfo from the bytes of one image format.
type imageParser interface {
	parse(name string, data []byte, loadAddress uint64) (*BinaryInfo, error)
}

var parsers = map[Format]imageParser{
	FormatELF:      elfParser{},
	FormatMachO:    machoParser{},
	FormatMachOFat: machoParser{},
	FormatPE:       peParser{},
}

// Resolve parses the image at path, mapped in the target process at
// loadAddress, and returns its symbols and BSS region.
// The file is mapped read-only only for the duration of the call.
func Resolve(path string, loadAddress uint64) (*BinaryInfo, error) {
	file, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening binary file")
	}
	defer file.Close()

	format := DetectFormat(file.Bytes())
	parser, ok := parsers[format]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedBinaryType, "failed to parse %s", path)
	}

	return parser.parse(path, file.Bytes(), loadAddress)
}

// ResolveAll resolves every image independently: a failure is logged
// and the image is left out of the result.
func ResolveAll(images []Image, logger log.Logger) map[string]*BinaryInfo {
	logger = logger.With().Str("component", "symtable").Logger()

	infos := make(map[string]*BinaryInfo, len(images))
	for _, image := range images {
		info, err := Resolve(image.Path, image.LoadAddress)
		if err != nil {
			logger.Warn().Err(err).Str("path", image.Path).Msg("failed to resolve image")
			continue
		}
		logger.Debug().
			Str("path", image.Path).
			Uint64("load_address", image.LoadAddress).
			Int("symbols", len(info.Symbols)).
			Msg("image resolved")
		infos[image.Path] = info
	}

	return infos
}
