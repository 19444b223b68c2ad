package symtable

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const peExportDirectorySize = 40

// peExportDirectory is the IMAGE_EXPORT_DIRECTORY table.
type peExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

type peExport struct {
	name string
	rva  uint32
	// forwarded exports point to a name in another module, not to code.
	forwarded bool
}

type peParser struct{}

func (peParser) parse(name string, data []byte, loadAddress uint64) (*BinaryInfo, error) {
	file, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing PE file %s", name)
	}
	defer file.Close()

	exports, err := peExports(file)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading PE exports of %s", name)
	}

	info := newBinaryInfo()
	for _, export := range exports {
		if export.name == "" || export.forwarded {
			continue
		}
		info.Symbols[export.name] = uint64(export.rva) + loadAddress
	}

	// PE has no zero-fill section header, .data holds the uninitialized tail.
	var dataSection *pe.Section
	for _, s := range file.Sections {
		if strings.HasPrefix(s.Name, ".data") {
			dataSection = s
			break
		}
	}
	if dataSection == nil {
		return nil, errors.Wrapf(ErrMissingDataSection, "failed to find .data section in PE binary of %s", name)
	}
	info.BSSAddr = uint64(dataSection.VirtualAddress) + loadAddress
	info.BSSSize = uint64(dataSection.VirtualSize)

	return info, nil
}

func peExportDataDirectory(file *pe.File) (pe.DataDirectory, bool) {
	switch oh := file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
			return oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT], true
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
			return oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT], true
		}
	}

	return pe.DataDirectory{}, false
}

// peExports walks the export directory. debug/pe does not decode it.
func peExports(file *pe.File) ([]peExport, error) {
	dd, ok := peExportDataDirectory(file)
	if !ok || dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil, nil
	}

	r := newPEReader(file)
	raw, err := r.slice(dd.VirtualAddress, peExportDirectorySize)
	if err != nil {
		return nil, errors.Wrap(err, "export directory")
	}
	var dir peExportDirectory
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &dir); err != nil {
		return nil, err
	}
	if dir.NumberOfNames == 0 {
		return nil, nil
	}

	funcs, err := r.slice(dir.AddressOfFunctions, uint64(dir.NumberOfFunctions)*4)
	if err != nil {
		return nil, errors.Wrap(err, "export address table")
	}
	names, err := r.slice(dir.AddressOfNames, uint64(dir.NumberOfNames)*4)
	if err != nil {
		return nil, errors.Wrap(err, "export name pointer table")
	}
	ordinals, err := r.slice(dir.AddressOfNameOrdinals, uint64(dir.NumberOfNames)*2)
	if err != nil {
		return nil, errors.Wrap(err, "export ordinal table")
	}

	exports := make([]peExport, 0, dir.NumberOfNames)
	for i := uint32(0); i < dir.NumberOfNames; i++ {
		ordinal := uint32(binary.LittleEndian.Uint16(ordinals[i*2:]))
		if ordinal >= dir.NumberOfFunctions {
			continue
		}
		name, err := r.cstring(binary.LittleEndian.Uint32(names[i*4:]))
		if err != nil {
			return nil, errors.Wrapf(err, "export name %d", i)
		}
		rva := binary.LittleEndian.Uint32(funcs[ordinal*4:])
		exports = append(exports, peExport{
			name:      name,
			rva:       rva,
			forwarded: rva >= dd.VirtualAddress && rva < dd.VirtualAddress+dd.Size,
		})
	}

	return exports, nil
}

// peReader reads the raw data of sections by relative virtual address.
type peReader struct {
	file *pe.File
	data map[*pe.Section][]byte
}

func newPEReader(file *pe.File) *peReader {
	return &peReader{file: file, data: make(map[*pe.Section][]byte)}
}

func (r *peReader) section(rva uint32) (*pe.Section, []byte, error) {
	for _, s := range r.file.Sections {
		if rva < s.VirtualAddress || rva-s.VirtualAddress >= max(s.VirtualSize, s.Size) {
			continue
		}
		data, ok := r.data[s]
		if !ok {
			var err error
			if data, err = s.Data(); err != nil {
				return nil, nil, errors.Wrapf(err, "error reading section %s", s.Name)
			}
			r.data[s] = data
		}
		return s, data, nil
	}

	return nil, nil, errors.Wrapf(ErrMalformedBinary, "rva %#x is not in any section", rva)
}

func (r *peReader) slice(rva uint32, n uint64) ([]byte, error) {
	s, data, err := r.section(rva)
	if err != nil {
		return nil, err
	}
	off := uint64(rva - s.VirtualAddress)
	if off+n > uint64(len(data)) {
		return nil, errors.Wrapf(ErrMalformedBinary, "rva %#x+%d out of section %s", rva, n, s.Name)
	}

	return data[off : off+n], nil
}

func (r *peReader) cstring(rva uint32) (string, error) {
	s, data, err := r.section(rva)
	if err != nil {
		return "", err
	}
	off := uint64(rva - s.VirtualAddress)
	if off >= uint64(len(data)) {
		return "", errors.Wrapf(ErrMalformedBinary, "rva %#x out of section %s", rva, s.Name)
	}

	return cstring(data[off:]), nil
}
