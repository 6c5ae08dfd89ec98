// Package security confines product files to their output directories.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath, once cleaned and made
// absolute, stays inside dir. The check is lexical so it also applies to
// in-memory filesystems used in tests.
func ValidatePathWithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return fmt.Errorf("path is outside output directory: %w", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// OutputPath builds the path of a product file named after an input file.
// Only the sanitised base name of input is kept, with ext replacing its
// extension.
func OutputPath(dir, input, ext string) (string, error) {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := SanitizeFilename(base) + ext
	path := filepath.Join(dir, name)
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// SanitizeFilename replaces anything other than ASCII letters, digits, dot,
// underscore or dash with a single underscore and caps the length at 128.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
