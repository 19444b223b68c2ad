package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const gzipJSONExt = ".json.gz"

// ParseAddress parses a decimal or 0x prefixed hexadecimal address.
func ParseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %q", s)
	}

	return addr, nil
}

// NumberedPath returns the path of the n-th file of a sequence starting at
// path: trace.json.gz, trace.1.json.gz, trace.2.json.gz and so on.
func NumberedPath(path string, n int) string {
	if n == 0 {
		return path
	}
	if base, ok := strings.CutSuffix(path, gzipJSONExt); ok {
		return fmt.Sprintf("%s.%d%s", base, n, gzipJSONExt)
	}

	return fmt.Sprintf("%s.%d", path, n)
}

func FormatAddress(addr uint64) string {
	return fmt.Sprintf("0x%016x", addr)
}
