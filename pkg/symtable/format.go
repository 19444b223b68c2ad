package symtable

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
)

// Format is the container format of an executable image.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
	FormatMachOFat
	FormatPE
)

var formatNames = map[Format]string{
	FormatUnknown:  "unknown",
	FormatELF:      "elf",
	FormatMachO:    "mach-o",
	FormatMachOFat: "mach-o-fat",
	FormatPE:       "pe",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return formatNames[FormatUnknown]
}

var (
	elfMagic = []byte("\x7fELF")
	peMagic  = []byte("MZ")
)

// DetectFormat detects the image format from its leading magic bytes.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, elfMagic):
		return FormatELF
	case bytes.HasPrefix(data, peMagic):
		return FormatPE
	case len(data) < 4:
		return FormatUnknown
	}

	if binary.BigEndian.Uint32(data) == macho.MagicFat {
		return FormatMachOFat
	}
	for _, bo := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch bo.Uint32(data) {
		case macho.Magic32, macho.Magic64:
			return FormatMachO
		}
	}

	return FormatUnknown
}
