package symtable

import (
	"github.com/pkg/errors"
)

var (
	ErrSymNotFound   = errors.New("symbol not found")
	ErrSymTableEmpty = errors.New("symtable is empty")

	ErrMissingBssSection        = errors.New("missing BSS section")
	ErrMissingExecutableSegment = errors.New("missing executable PT_LOAD segment")
	ErrMissingDataSection       = errors.New("missing .data section")
	ErrNoFatArch64              = errors.New("no 64 bit arch in FAT archive")
	ErrUnsupportedBinaryType    = errors.New("unhandled binary type")
	ErrMalformedBinary          = errors.New("malformed binary")
)
