package format

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownFormat is returned by Parse for names outside the registry.
var ErrUnknownFormat = errors.New("unknown image format")

// Format is one of the raster formats the converter reads and writes.
type Format int

const (
	Unknown Format = iota
	JPEG
	PNG
	BMP
	GIF
	TIFF
	WEBP
)

// formatInfo describes a registered format.
type formatInfo struct {
	name       string
	extensions []string // first entry is the canonical output extension
	alpha      bool
}

var registry = map[Format]formatInfo{
	JPEG: {name: "JPEG", extensions: []string{".jpg", ".jpeg"}, alpha: false},
	PNG:  {name: "PNG", extensions: []string{".png"}, alpha: true},
	BMP:  {name: "BMP", extensions: []string{".bmp"}, alpha: false},
	GIF:  {name: "GIF", extensions: []string{".gif"}, alpha: true},
	TIFF: {name: "TIFF", extensions: []string{".tiff", ".tif"}, alpha: true},
	WEBP: {name: "WEBP", extensions: []string{".webp"}, alpha: true},
}

var aliases = map[string]Format{
	"JPEG": JPEG,
	"JPG":  JPEG,
	"PNG":  PNG,
	"BMP":  BMP,
	"GIF":  GIF,
	"TIFF": TIFF,
	"TIF":  TIFF,
	"WEBP": WEBP,
}

// All returns every registered format in declaration order.
func All() []Format {
	return []Format{JPEG, PNG, BMP, GIF, TIFF, WEBP}
}

// Names returns the canonical names of all formats.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, f := range All() {
		names = append(names, f.String())
	}
	return names
}

// String returns the canonical upper-case name of the format.
func (f Format) String() string {
	if info, ok := registry[f]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Extension returns the canonical output extension, including the dot.
func (f Format) Extension() string {
	if info, ok := registry[f]; ok {
		return info.extensions[0]
	}
	return ".png"
}

// Extensions returns all recognized extensions for the format.
func (f Format) Extensions() []string {
	info, ok := registry[f]
	if !ok {
		return nil
	}
	return append([]string(nil), info.extensions...)
}

// SupportsAlpha reports whether the format can store transparency.
func (f Format) SupportsAlpha() bool {
	return registry[f].alpha
}

// Parse resolves a format name, case-insensitively.
func Parse(name string) (Format, error) {
	f, ok := aliases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Unknown, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownFormat, name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// FromPath returns the format for the extension of path.
func FromPath(path string) (Format, bool) {
	ext := normalizeExtension(filepath.Ext(path))
	for _, f := range All() {
		for _, e := range registry[f].extensions {
			if e == ext {
				return f, true
			}
		}
	}
	return Unknown, false
}

// SupportedExtensions returns every recognized extension, lower-case and sorted.
func SupportedExtensions() []string {
	var exts []string
	for _, f := range All() {
		exts = append(exts, registry[f].extensions...)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether the extension of path belongs to a registered format.
func IsSupported(path string) bool {
	_, ok := FromPath(path)
	return ok
}

// CanonicalExtension returns the default extension for a format name.
// Unknown names fall back to ".png".
func CanonicalExtension(name string) string {
	f, err := Parse(name)
	if err != nil {
		return ".png"
	}
	return f.Extension()
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
