package symtable

import (
	"bytes"
	"debug/elf"
	"os"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

// LLVM may suffix local symbols when inlining across modules with LTO
// (e.g. Py_GetVersion.version.llvm.1990823568301052423).
var llvmSuffix = regexp.MustCompile(`[.]llvm[.][0-9]+$`)

type elfParser struct{}

func (elfParser) parse(name string, data []byte, loadAddress uint64) (*BinaryInfo, error) {
	file, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing ELF file %s", name)
	}
	defer file.Close()

	bss := elfBSSSection(file)
	if bss == nil {
		return nil, errors.Wrapf(ErrMissingBssSection, "failed to find BSS section header in %s", name)
	}

	prog := elfExecSegment(file)
	if prog == nil {
		return nil, errors.Wrapf(ErrMissingExecutableSegment, "failed to find executable PT_LOAD program header in %s", name)
	}

	// Symbol values are relative to the page-aligned vaddr of the text segment.
	pageSize := uint64(os.Getpagesize())
	offset := loadAddress - (prog.Vaddr - prog.Vaddr%pageSize)

	info := newBinaryInfo()

	syms, err := file.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrapf(err, "error reading ELF symtable section of %s", name)
	}
	for _, sym := range syms {
		// Only count defined symbols.
		if sym.Section == elf.SHN_UNDEF {
			continue
		}
		info.Symbols[llvmSuffix.ReplaceAllString(sym.Name, "")] = sym.Value + offset
	}

	dynsyms, err := file.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrapf(err, "error reading ELF dynsym section of %s", name)
	}
	for _, sym := range dynsyms {
		if sym.Section == elf.SHN_UNDEF {
			continue
		}
		info.Symbols[sym.Name] = sym.Value + offset
	}

	info.BSSAddr = bss.Addr + offset
	info.BSSSize = bss.Size

	return info, nil
}

// elfBSSSection returns the largest NOBITS section named .bss.
func elfBSSSection(file *elf.File) *elf.Section {
	var bss *elf.Section
	for _, s := range file.Sections {
		if s.Type != elf.SHT_NOBITS || s.Name != ".bss" {
			continue
		}
		if bss == nil || s.Size >= bss.Size {
			bss = s
		}
	}

	return bss
}

// elfExecSegment returns the first loadable and executable segment.
func elfExecSegment(file *elf.File) *elf.Prog {
	for _, p := range file.Progs {
		if p.Type == elf.PT_LOAD && p.Flags&elf.PF_X != 0 {
			return p
		}
	}

	return nil
}
