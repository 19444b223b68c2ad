// Package mmap maps files read-only into memory.
package mmap

import (
	"os"

	"github.com/pkg/errors"
)

// File is a read-only memory-mapped file. Slices returned by Bytes
// refer directly to the mapped memory and must not be used after Close.
type File struct {
	data    []byte
	release func([]byte) error
}

// Open maps the named regular file read-only.
func Open(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, errors.Errorf("mmap: %q is not a regular file", filename)
	}

	size := st.Size()
	if size == 0 {
		return &File{data: []byte{}}, nil
	}
	if size != int64(int(size)) {
		return nil, errors.Errorf("mmap: file %q is too large", filename)
	}

	data, release, err := mapFile(f, int(size))
	if err != nil {
		return nil, errors.Wrapf(err, "mmap: failed to map %q", filename)
	}

	return &File{data: data, release: release}, nil
}

// Bytes returns the whole mapping. There is no copying.
func (f *File) Bytes() []byte {
	return f.data
}

// Close releases the mapping.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	var err error
	if f.release != nil {
		err = f.release(f.data)
	}
	*f = File{}
	return err
}
