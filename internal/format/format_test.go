package format

import (
	"errors"
	"strings"
	"testing"
)

func TestIsSupportedAcceptsEveryExtensionInAnyCase(t *testing.T) {
	for _, ext := range SupportedExtensions() {
		for _, name := range []string{"photo" + ext, "PHOTO" + strings.ToUpper(ext), "dir/a.b" + ext} {
			if !IsSupported(name) {
				t.Errorf("IsSupported(%q) = false, want true", name)
			}
		}
	}
}

func TestIsSupportedRejectsUnknownExtensions(t *testing.T) {
	for _, name := range []string{"file.xyz", "file", "file.jpg.txt", ".hidden", "archive.tar.gz"} {
		if IsSupported(name) {
			t.Errorf("IsSupported(%q) = true, want false", name)
		}
	}
}

func TestSupportedExtensionsAreLowerCaseAndDotted(t *testing.T) {
	exts := SupportedExtensions()
	if len(exts) != 8 {
		t.Fatalf("expected 8 extensions, got %d: %v", len(exts), exts)
	}
	for _, ext := range exts {
		if ext[0] != '.' || ext != strings.ToLower(ext) {
			t.Errorf("extension %q is not normalized", ext)
		}
	}
}

func TestCanonicalExtension(t *testing.T) {
	cases := map[string]string{
		"JPEG":  ".jpg",
		"jpeg":  ".jpg",
		"png":   ".png",
		"Bmp":   ".bmp",
		"GIF":   ".gif",
		"tiff":  ".tiff",
		"WEBP":  ".webp",
		"bogus": ".png",
	}
	for name, want := range cases {
		if got := CanonicalExtension(name); got != want {
			t.Errorf("CanonicalExtension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	f, err := Parse("jpg")
	if err != nil || f != JPEG {
		t.Fatalf("Parse(jpg) = %v, %v", f, err)
	}
	f, err = Parse(" tif ")
	if err != nil || f != TIFF {
		t.Fatalf("Parse(tif) = %v, %v", f, err)
	}
	if _, err := Parse("heic"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFromPathAndAlpha(t *testing.T) {
	f, ok := FromPath("/tmp/out.JPEG")
	if !ok || f != JPEG {
		t.Fatalf("FromPath = %v, %v", f, ok)
	}
	if f.SupportsAlpha() {
		t.Error("JPEG must not support alpha")
	}
	if BMP.SupportsAlpha() {
		t.Error("BMP must not support alpha")
	}
	if !PNG.SupportsAlpha() || !WEBP.SupportsAlpha() {
		t.Error("PNG and WEBP must support alpha")
	}
	if _, ok := FromPath("out.xyz"); ok {
		t.Error("FromPath accepted .xyz")
	}
}
