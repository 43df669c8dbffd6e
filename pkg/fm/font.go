package fm

import (
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/logandonley/fontreg/internal/platform"
)

// Scope selects which registration store and managed directory an operation uses
type Scope = platform.Scope

const (
	ScopeUser    = platform.ScopeUser
	ScopeMachine = platform.ScopeMachine
)

// SupportedExtensions lists the font file types the OS font loader accepts, in
// the order they are probed when a caller omits the extension.
var SupportedExtensions = []string{".ttf", ".otf", ".fon", ".ttc", ".fnt"}

// FontIdentification records where and under which display name a font is installed
type FontIdentification struct {
	// FontPath is the absolute path of the installed font file. It lies in
	// the managed directory unless the font was installed by reference.
	FontPath string

	// FontExtension is the lower-cased extension, e.g. ".otf"
	FontExtension string

	// RegistryValueName is the display name the font is stored under
	RegistryValueName string

	// RegistryRawValue is the stored value as written: a bare file name or an absolute path
	RegistryRawValue string
}

// FormatDisplayName decorates stem the way the Windows font installer does,
// so fonts installed here are indistinguishable from ones installed by the OS.
func FormatDisplayName(ext, stem string) string {
	switch strings.ToLower(ext) {
	case ".otf":
		return stem + " (OpenType)"
	case ".ttc":
		return stem + " (TrueType)"
	case ".fon":
		return stem + " (VGA res)"
	default:
		return stem
	}
}

func displayName(fileName string) string {
	ext := extension(fileName)
	return FormatDisplayName(ext, capitalize(strings.TrimSuffix(fileName, ext)))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func isSupported(ext string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(ext))
}

func isFontFile(name string) bool {
	return isSupported(filepath.Ext(name))
}
