package symtable_test

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Images are synthesized so that every layout rule can be exercised
// without depending on the toolchain of the host.

func writeImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func put(t *testing.T, buf *bytes.Buffer, bo binary.ByteOrder, v any) {
	t.Helper()
	require.NoError(t, binary.Write(buf, bo, v))
}

func pad(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := new(strtab)
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

// ELF

type elfSym struct {
	name    string
	value   uint64
	section elf.SectionIndex
}

type elfSection struct {
	name string
	typ  elf.SectionType
	addr uint64
	size uint64
}

type elfImage struct {
	progs    []elf.Prog64
	sections []elfSection
	syms     []elfSym
	dynsyms  []elfSym
}

func buildELF(t *testing.T, img elfImage) []byte {
	t.Helper()

	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
		symSize  = 24
	)

	type blob struct {
		hdr  elf.Section64
		name string
		data []byte
	}
	blobs := []blob{{}}

	for _, s := range img.sections {
		b := blob{name: s.name, hdr: elf.Section64{
			Type:      uint32(s.typ),
			Flags:     uint64(elf.SHF_ALLOC),
			Addr:      s.addr,
			Size:      s.size,
			Addralign: 8,
		}}
		if s.typ != elf.SHT_NOBITS {
			b.data = make([]byte, s.size)
		}
		blobs = append(blobs, b)
	}

	addSymtab := func(name, strName string, typ elf.SectionType, syms []elfSym) {
		if len(syms) == 0 {
			return
		}
		strs := newStrtab()
		var data bytes.Buffer
		data.Write(make([]byte, symSize))
		for _, sym := range syms {
			put(t, &data, binary.LittleEndian, elf.Sym64{
				Name:  strs.add(sym.name),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
				Shndx: uint16(sym.section),
				Value: sym.value,
				Size:  8,
			})
		}
		blobs = append(blobs, blob{name: name, data: data.Bytes(), hdr: elf.Section64{
			Type:      uint32(typ),
			Link:      uint32(len(blobs) + 1),
			Info:      1,
			Addralign: 8,
			Entsize:   symSize,
		}})
		blobs = append(blobs, blob{name: strName, data: strs.buf.Bytes(), hdr: elf.Section64{
			Type:      uint32(elf.SHT_STRTAB),
			Addralign: 1,
		}})
	}
	addSymtab(".symtab", ".strtab", elf.SHT_SYMTAB, img.syms)
	addSymtab(".dynsym", ".dynstr", elf.SHT_DYNSYM, img.dynsyms)

	shstrs := newStrtab()
	shstrndx := len(blobs)
	blobs = append(blobs, blob{name: ".shstrtab", hdr: elf.Section64{
		Type:      uint32(elf.SHT_STRTAB),
		Addralign: 1,
	}})
	for i := 1; i < len(blobs); i++ {
		blobs[i].hdr.Name = shstrs.add(blobs[i].name)
	}
	blobs[shstrndx].data = shstrs.buf.Bytes()

	var body bytes.Buffer
	dataOff := uint64(ehdrSize + phdrSize*len(img.progs))
	for i := 1; i < len(blobs); i++ {
		if elf.SectionType(blobs[i].hdr.Type) == elf.SHT_NOBITS {
			continue
		}
		blobs[i].hdr.Off = dataOff + uint64(body.Len())
		blobs[i].hdr.Size = uint64(len(blobs[i].data))
		body.Write(blobs[i].data)
	}
	pad(&body, 8)
	shoff := dataOff + uint64(body.Len())

	var out bytes.Buffer
	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)}
	var phoff uint64
	if len(img.progs) > 0 {
		phoff = ehdrSize
	}
	put(t, &out, binary.LittleEndian, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(img.progs)),
		Shentsize: shdrSize,
		Shnum:     uint16(len(blobs)),
		Shstrndx:  uint16(shstrndx),
	})
	for _, p := range img.progs {
		put(t, &out, binary.LittleEndian, p)
	}
	out.Write(body.Bytes())
	for _, b := range blobs {
		put(t, &out, binary.LittleEndian, b.hdr)
	}

	return out.Bytes()
}

// Mach-O

type machoSection struct {
	name string
	addr uint64
	size uint64
}

type machoSegment struct {
	name     string
	sections []machoSection
}

type machoSym struct {
	name  string
	value uint64
}

type machoImage struct {
	cpu      macho.Cpu
	is32     bool
	segments []machoSegment
	syms     []machoSym
}

func name16(s string) [16]byte {
	var b [16]byte
	copy(b[:], s)
	return b
}

func name8(s string) [8]uint8 {
	var b [8]uint8
	copy(b[:], s)
	return b
}

func buildMachO(t *testing.T, img machoImage) []byte {
	t.Helper()
	bo := binary.LittleEndian

	const symtabCmdSize = 24
	magic := uint32(macho.Magic64)
	headerSize, segmentSize, sectionSize := uint32(32), uint32(72), uint32(80)
	if img.is32 {
		magic = macho.Magic32
		headerSize, segmentSize, sectionSize = 28, 56, 68
	}

	var cmds bytes.Buffer
	ncmd := uint32(0)
	for _, seg := range img.segments {
		ncmd++
		cmdLen := segmentSize + sectionSize*uint32(len(seg.sections))
		if img.is32 {
			put(t, &cmds, bo, macho.Segment32{
				Cmd:   macho.LoadCmdSegment,
				Len:   cmdLen,
				Name:  name16(seg.name),
				Nsect: uint32(len(seg.sections)),
			})
		} else {
			put(t, &cmds, bo, macho.Segment64{
				Cmd:   macho.LoadCmdSegment64,
				Len:   cmdLen,
				Name:  name16(seg.name),
				Nsect: uint32(len(seg.sections)),
			})
		}
		for _, s := range seg.sections {
			if img.is32 {
				put(t, &cmds, bo, macho.Section32{
					Name: name16(s.name),
					Seg:  name16(seg.name),
					Addr: uint32(s.addr),
					Size: uint32(s.size),
				})
				continue
			}
			put(t, &cmds, bo, macho.Section64{
				Name: name16(s.name),
				Seg:  name16(seg.name),
				Addr: s.addr,
				Size: s.size,
			})
		}
	}

	var symdat bytes.Buffer
	strs := newStrtab()
	for _, sym := range img.syms {
		if img.is32 {
			put(t, &symdat, bo, macho.Nlist32{Name: strs.add(sym.name), Type: 0x0f, Sect: 1, Value: uint32(sym.value)})
			continue
		}
		put(t, &symdat, bo, macho.Nlist64{Name: strs.add(sym.name), Type: 0x0f, Sect: 1, Value: sym.value})
	}

	cmdsz := uint32(cmds.Len())
	if len(img.syms) > 0 {
		ncmd++
		cmdsz += symtabCmdSize
		symoff := headerSize + cmdsz
		put(t, &cmds, bo, macho.SymtabCmd{
			Cmd:     macho.LoadCmdSymtab,
			Len:     symtabCmdSize,
			Symoff:  symoff,
			Nsyms:   uint32(len(img.syms)),
			Stroff:  symoff + uint32(symdat.Len()),
			Strsize: uint32(strs.buf.Len()),
		})
	}

	var out bytes.Buffer
	put(t, &out, bo, macho.FileHeader{
		Magic:  magic,
		Cpu:    img.cpu,
		SubCpu: 3,
		Type:   macho.TypeExec,
		Ncmd:   ncmd,
		Cmdsz:  cmdsz,
	})
	if !img.is32 {
		put(t, &out, bo, uint32(0))
	}
	out.Write(cmds.Bytes())
	out.Write(symdat.Bytes())
	out.Write(strs.buf.Bytes())

	return out.Bytes()
}

type fatSlice struct {
	cpu  macho.Cpu
	data []byte
}

func buildFat(t *testing.T, slices []fatSlice) []byte {
	t.Helper()
	bo := binary.BigEndian

	const align = 16
	var out bytes.Buffer
	put(t, &out, bo, uint32(macho.MagicFat))
	put(t, &out, bo, uint32(len(slices)))

	off := 8 + 20*len(slices)
	off = (off + align - 1) / align * align
	offsets := make([]int, len(slices))
	for i, s := range slices {
		offsets[i] = off
		put(t, &out, bo, macho.FatArchHeader{
			Cpu:    s.cpu,
			SubCpu: 3,
			Offset: uint32(off),
			Size:   uint32(len(s.data)),
			Align:  4,
		})
		off += len(s.data)
		off = (off + align - 1) / align * align
	}
	for i, s := range slices {
		for out.Len() < offsets[i] {
			out.WriteByte(0)
		}
		out.Write(s.data)
	}

	return out.Bytes()
}

// PE

type peSection struct {
	name  string
	va    uint32
	vsize uint32
	raw   []byte
}

type peExportEntry struct {
	name    string
	rva     uint32
	forward string
}

// buildPEExports lays out an export directory at rva va.
func buildPEExports(t *testing.T, va uint32, exports []peExportEntry) []byte {
	t.Helper()
	bo := binary.LittleEndian

	n := uint32(len(exports))
	funcsOff := uint32(40)
	namesOff := funcsOff + 4*n
	ordsOff := namesOff + 4*n
	strOff := ordsOff + 2*n

	var strs bytes.Buffer
	addStr := func(s string) uint32 {
		off := va + strOff + uint32(strs.Len())
		strs.WriteString(s)
		strs.WriteByte(0)
		return off
	}
	dllName := addStr("test.dll")

	funcs := make([]uint32, n)
	names := make([]uint32, n)
	ords := make([]uint16, n)
	for i, e := range exports {
		names[i] = addStr(e.name)
		ords[i] = uint16(i)
		funcs[i] = e.rva
	}
	for i, e := range exports {
		if e.forward != "" {
			funcs[i] = addStr(e.forward)
		}
	}

	var out bytes.Buffer
	for _, v := range []uint32{0, 0} {
		put(t, &out, bo, v)
	}
	put(t, &out, bo, uint16(0))
	put(t, &out, bo, uint16(0))
	for _, v := range []uint32{dllName, 1, n, n, va + funcsOff, va + namesOff, va + ordsOff} {
		put(t, &out, bo, v)
	}
	put(t, &out, bo, funcs)
	put(t, &out, bo, names)
	put(t, &out, bo, ords)
	out.Write(strs.Bytes())

	return out.Bytes()
}

func buildPE(t *testing.T, sections []peSection, exportDir pe.DataDirectory) []byte {
	t.Helper()
	bo := binary.LittleEndian

	const (
		peOff         = 0x40
		optHeaderSize = 240
		fileAlign     = 0x200
	)

	var out bytes.Buffer
	dos := make([]byte, peOff)
	dos[0], dos[1] = 'M', 'Z'
	bo.PutUint32(dos[0x3c:], peOff)
	out.Write(dos)
	out.WriteString("PE\x00\x00")
	put(t, &out, bo, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     uint16(len(sections)),
		SizeOfOptionalHeader: optHeaderSize,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_DLL,
	})

	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           0x180000000,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlign,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT] = exportDir
	put(t, &out, bo, oh)

	rawOff := out.Len() + 40*len(sections)
	rawOff = (rawOff + fileAlign - 1) / fileAlign * fileAlign
	offsets := make([]int, len(sections))
	for i, s := range sections {
		offsets[i] = rawOff
		put(t, &out, bo, pe.SectionHeader32{
			Name:             name8(s.name),
			VirtualSize:      s.vsize,
			VirtualAddress:   s.va,
			SizeOfRawData:    uint32(len(s.raw)),
			PointerToRawData: uint32(rawOff),
		})
		rawOff += len(s.raw)
		rawOff = (rawOff + fileAlign - 1) / fileAlign * fileAlign
	}
	for i, s := range sections {
		for out.Len() < offsets[i] {
			out.WriteByte(0)
		}
		out.Write(s.raw)
	}

	return out.Bytes()
}
