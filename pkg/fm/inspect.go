package fm

import (
	"fmt"
	"os"
	"strings"

	"seehuhn.de/go/sfnt"
)

// FontInfo is the metadata read from an SFNT font file
type FontInfo struct {
	Path           string
	Family         string
	PostScriptName string
	Outlines       string // "TrueType" or "CFF"
	Weight         int
	Italic         bool
	UnitsPerEm     int
	NumGlyphs      int
}

// Inspect reads the naming and outline information of a .ttf or .otf file.
// Other formats fail with KindUnsupportedFormat.
func Inspect(path string) (*FontInfo, error) {
	name := baseName(path)
	ext := strings.ToLower(extension(path))
	if ext != ".ttf" && ext != ".otf" {
		return nil, newError(KindUnsupportedFormat, name, fmt.Errorf("cannot inspect %q files", ext))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindNotFound, name, err)
	}
	defer f.Close()

	font, err := sfnt.Read(f)
	if err != nil {
		return nil, newError(KindUnsupportedFormat, name, fmt.Errorf("reading font: %w", err))
	}

	info := &FontInfo{
		Path:           path,
		Family:         font.FamilyName,
		PostScriptName: font.PostScriptName(),
		Outlines:       "CFF",
		Weight:         int(font.Weight),
		Italic:         font.IsItalic,
		UnitsPerEm:     int(font.UnitsPerEm),
		NumGlyphs:      font.NumGlyphs(),
	}
	if font.IsGlyf() {
		info.Outlines = "TrueType"
	}
	return info, nil
}
