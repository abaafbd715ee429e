// Package shared provides common utility functions used across multiple
// packages in the nwbio codebase.
package shared

import (
	"fmt"
	"strings"
	"unicode"
)

// JoinPath appends name to an absolute store path.
func JoinPath(parent string, name string) string {
	if parent == "" || parent == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(parent, "/") + "/" + name
}

// SplitPath returns the non-empty segments of an absolute path.
func SplitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParentPath returns the path of the enclosing group.
func ParentPath(path string) string {
	parts := SplitPath(path)
	if len(parts) <= 1 {
		return "/"
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/")
}

// BaseName returns the last path segment, or "/" for the root.
func BaseName(path string) string {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return "/"
	}
	return parts[len(parts)-1]
}

// ValidateName rejects names that cannot be stored as a single path
// segment.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("name %q must not contain '/'", name)
	}
	if name[0] == 0 {
		return fmt.Errorf("name %q must not start with a NUL byte", name)
	}
	return nil
}

// SnakeCase converts a CamelCase type name into snake_case, keeping runs
// of capitals together ("NWBDataInterface" -> "nwb_data_interface").
func SnakeCase(value string) string {
	runes := []rune(value)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			if i > 0 && (prevLower || (prevUpper && nextLower)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
