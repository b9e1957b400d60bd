package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEntry reports a malformed entry name.
var ErrEntry = errors.New("invalid entry name")

// SplitEntry splits a qualified entry name ("pkg::name", "pkg.name" or
// "name") into its package and local parts. The local part must be an
// identifier; the package may be empty.
func SplitEntry(entry string) (pkg, local string, err error) {
	switch {
	case strings.Contains(entry, "::"):
		pkg, local, _ = strings.Cut(entry, "::")
	case strings.Contains(entry, "."):
		i := strings.LastIndexByte(entry, '.')
		if i == 0 {
			return "", "", fmt.Errorf("%w: %q", ErrEntry, entry)
		}
		pkg, local = entry[:i], entry[i+1:]
	default:
		local = entry
	}
	if !isIdentifier(local) {
		return "", "", fmt.Errorf("%w: %q", ErrEntry, entry)
	}
	for _, seg := range strings.Split(pkg, ".") {
		if pkg != "" && !isIdentifier(seg) {
			return "", "", fmt.Errorf("%w: %q", ErrEntry, entry)
		}
	}
	return pkg, local, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		case r > 0x7f:
		default:
			return false
		}
	}
	return true
}
