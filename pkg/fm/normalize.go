package fm

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/logandonley/fontreg/internal/platform"
)

var separators = strings.NewReplacer(`\`, string(filepath.Separator), `/`, string(filepath.Separator))

// NormalizePath returns the canonical comparison form of a font identifier.
//
// Anything that looks like a path (it contains a separator or "..", starts
// with "." or is rooted) becomes an absolute path with platform separators,
// resolved against the working directory. Bare names stay names. In both
// cases only the extension is lower-cased. The filesystem is never consulted.
func NormalizePath(s string) string {
	if looksLikePath(s) {
		s = absPath(s)
	}
	if ext := extension(s); ext != "" {
		s = strings.TrimSuffix(s, ext) + strings.ToLower(ext)
	}
	return s
}

func looksLikePath(s string) bool {
	return strings.ContainsAny(s, `/\`) ||
		strings.Contains(s, "..") ||
		strings.HasPrefix(s, ".") ||
		filepath.IsAbs(s)
}

// absPath resolves s against the working directory without changing case
func absPath(s string) string {
	s = separators.Replace(s)
	if abs, err := filepath.Abs(s); err == nil {
		return abs
	}
	return filepath.Clean(s)
}

// extension returns the trailing ".xxx" of name. Suffixes containing spaces
// or parentheses belong to display names like "Foo 1.0 (OpenType)" and do
// not count.
func extension(name string) string {
	ext := filepath.Ext(name)
	if len(ext) < 2 || strings.ContainsAny(ext, " \t()") {
		return ""
	}
	return ext
}

func stem(name string) string {
	return strings.TrimSuffix(name, extension(name))
}

// baseName is the last element of a normalized identifier
func baseName(s string) string {
	if !looksLikePath(s) {
		return s
	}
	return filepath.Base(separators.Replace(s))
}

// foldName is the case-insensitive comparison key for display names
func foldName(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func samePath(a, b string) bool {
	if platform.CaseInsensitivePaths {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// withinDir reports whether p names an entry below dir
func withinDir(dir, p string) bool {
	if dir == "" {
		return false
	}
	if platform.CaseInsensitivePaths {
		dir, p = strings.ToLower(dir), strings.ToLower(p)
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(p))
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
