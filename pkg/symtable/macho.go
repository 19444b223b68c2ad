package symtable

import (
	"bytes"
	"debug/macho"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// cpuArch64 is the ABI flag set in the cpu type of 64 bit slices.
	cpuArch64 = 0x01000000

	fatHeaderSize     = 8
	fatArchHeaderSize = 20

	nlist32Size = 12
	nlist64Size = 16
)

type machoParser struct{}

func (machoParser) parse(name string, data []byte, loadAddress uint64) (*BinaryInfo, error) {
	image := data
	if DetectFormat(data) == FormatMachOFat {
		var err error
		if image, err = fatArch64(name, data); err != nil {
			return nil, err
		}
	}

	file, err := macho.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing Mach-O file %s", name)
	}
	defer file.Close()

	info := newBinaryInfo()

	// Sections are ordered by segment, as in the load commands.
	// The last __bss wins.
	for _, s := range file.Sections {
		if s.Name == "__bss" {
			info.BSSAddr = s.Addr + loadAddress
			info.BSSSize = s.Size
		}
	}

	if file.Symtab == nil {
		return info, nil
	}
	syms, err := machoSymbols(file, image)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading Mach-O symtab of %s", name)
	}
	for _, sym := range syms {
		// C symbols carry a leading underscore, ELF and PE symbols don't.
		if len(sym.Name) == 0 || sym.Name[0] != '_' {
			continue
		}
		info.Symbols[sym.Name[1:]] = sym.Value + loadAddress
	}

	return info, nil
}

// fatArch64 returns the bytes of the first 64 bit slice of a fat archive.
func fatArch64(name string, data []byte) ([]byte, error) {
	if len(data) < fatHeaderSize {
		return nil, errors.Wrapf(ErrMalformedBinary, "truncated FAT header in %s", name)
	}
	narch := binary.BigEndian.Uint32(data[4:8])

	for i := uint32(0); i < narch; i++ {
		off := fatHeaderSize + uint64(i)*fatArchHeaderSize
		if off+fatArchHeaderSize > uint64(len(data)) {
			return nil, errors.Wrapf(ErrMalformedBinary, "truncated FAT arch header %d in %s", i, name)
		}

		var arch macho.FatArchHeader
		if err := binary.Read(bytes.NewReader(data[off:off+fatArchHeaderSize]), binary.BigEndian, &arch); err != nil {
			return nil, errors.Wrapf(err, "error reading FAT arch header %d in %s", i, name)
		}
		if uint32(arch.Cpu)&cpuArch64 == 0 {
			continue
		}

		end := uint64(arch.Offset) + uint64(arch.Size)
		if end > uint64(len(data)) {
			return nil, errors.Wrapf(ErrMalformedBinary, "FAT arch %s out of bounds in %s", arch.Cpu, name)
		}

		return data[arch.Offset:end], nil
	}

	return nil, errors.Wrapf(ErrNoFatArch64, "failed to find 64 bit arch in FAT archive in %s", name)
}

// machoSymbols reads the raw nlist entries of the symbol table.
// debug/macho rewrites some names while parsing them, so the table is
// decoded again from the image bytes.
func machoSymbols(file *macho.File, image []byte) ([]macho.Symbol, error) {
	st := file.Symtab

	entSize := uint64(nlist32Size)
	if file.Magic == macho.Magic64 {
		entSize = nlist64Size
	}

	symEnd := uint64(st.Symoff) + uint64(st.Nsyms)*entSize
	strEnd := uint64(st.Stroff) + uint64(st.Strsize)
	if symEnd > uint64(len(image)) || strEnd > uint64(len(image)) {
		return nil, errors.Wrap(ErrMalformedBinary, "symbol table out of bounds")
	}
	symdat := image[st.Symoff:symEnd]
	strtab := image[st.Stroff:strEnd]

	bo := file.ByteOrder
	syms := make([]macho.Symbol, 0, st.Nsyms)
	for i := uint64(0); i < uint64(st.Nsyms); i++ {
		entry := symdat[i*entSize : (i+1)*entSize]

		strx := bo.Uint32(entry[0:4])
		if uint64(strx) >= uint64(len(strtab)) {
			return nil, errors.Wrapf(ErrMalformedBinary, "invalid name in symbol table entry %d", i)
		}

		var value uint64
		if entSize == nlist64Size {
			value = bo.Uint64(entry[8:16])
		} else {
			value = uint64(bo.Uint32(entry[8:12]))
		}

		syms = append(syms, macho.Symbol{
			Name:  cstring(strtab[strx:]),
			Type:  entry[4],
			Sect:  entry[5],
			Desc:  bo.Uint16(entry[6:8]),
			Value: value,
		})
	}

	return syms, nil
}

// cstring copies a NUL-terminated string out of b.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
