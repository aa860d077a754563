package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"image-converter-go/internal/converter"
	"image-converter-go/internal/testutil"

	"github.com/disintegration/imaging"
)

func run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(normalizeResizeArgs(args))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestQualityOutOfRangeFailsBeforeConverting(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteImage(t, filepath.Join(dir, "in.png"), testutil.Solid(4, 4, color.Black))

	for _, q := range []string{"0", "101"} {
		out := filepath.Join(dir, "out-"+q, "out.jpg")
		_, _, err := run(in, out, "--quality", q)
		if !errors.Is(err, converter.ErrValidation) {
			t.Errorf("quality %s: expected ErrValidation, got %v", q, err)
		}
		if _, err := os.Stat(filepath.Dir(out)); !os.IsNotExist(err) {
			t.Errorf("quality %s: output directory was created", q)
		}
	}
}

func TestExecuteExitCodes(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteImage(t, filepath.Join(dir, "in.png"), testutil.Solid(4, 4, color.Black))
	var out, errOut bytes.Buffer

	if code := execute([]string{in, filepath.Join(dir, "ok.bmp")}, &out, &errOut); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut.String())
	}
	if code := execute([]string{in, filepath.Join(dir, "bad.jpg"), "--quality", "0"}, &out, &errOut); code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if code := execute([]string{filepath.Join(dir, "missing.png"), filepath.Join(dir, "x.png")}, &out, &errOut); code != 1 {
		t.Fatalf("exit code %d for missing input, want 1", code)
	}
}

func TestResizeZeroRejected(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteImage(t, filepath.Join(dir, "in.png"), testutil.Gradient(40, 20))

	for _, size := range [][2]string{{"0", "0"}, {"0", "10"}, {"10", "0"}} {
		out := filepath.Join(dir, "out-"+size[0]+"-"+size[1], "out.png")
		_, _, err := run(in, out, "--resize", size[0], size[1])
		if !errors.Is(err, converter.ErrValidation) {
			t.Errorf("--resize %s %s: expected ErrValidation, got %v", size[0], size[1], err)
		}
		if _, err := os.Stat(filepath.Dir(out)); !os.IsNotExist(err) {
			t.Errorf("--resize %s %s: output directory was created", size[0], size[1])
		}
	}

	_, _, err := run(in, filepath.Join(dir, "neg.png"), "--resize=-5,10")
	if !errors.Is(err, converter.ErrValidation) {
		t.Errorf("--resize=-5,10: expected ErrValidation, got %v", err)
	}
}

func TestNormalizeResizeArgs(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"a", "b", "--resize", "800", "600"}, []string{"a", "b", "--resize=800,600"}},
		{[]string{"--resize", "800", "600", "a", "b"}, []string{"--resize=800,600", "a", "b"}},
		{[]string{"a", "b", "--resize=10,20"}, []string{"a", "b", "--resize=10,20"}},
		{[]string{"a", "b", "--resize", "800"}, []string{"a", "b", "--resize", "800"}},
		{[]string{"a", "b"}, []string{"a", "b"}},
	}
	for _, c := range cases {
		if got := normalizeResizeArgs(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("normalizeResizeArgs(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSingleConversionWithResize(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteImage(t, filepath.Join(dir, "in.png"), testutil.Gradient(40, 20))
	out := filepath.Join(dir, "nested", "out.jpg")

	if _, stderr, err := run(in, out, "--resize", "10", "30", "--quality", "70"); err != nil {
		t.Fatalf("convert: %v (%s)", err, stderr)
	}
	img, err := imaging.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b != image.Rect(0, 0, 10, 30) {
		t.Fatalf("bounds = %v, want 10x30", b)
	}
}

func TestUnsupportedInputPrintsSupportedList(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))

	_, stderr, err := run(in, filepath.Join(dir, "notes.png"))
	if !errors.Is(err, converter.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !strings.Contains(stderr, "Supported formats:") || !strings.Contains(stderr, ".webp") {
		t.Fatalf("stderr missing supported list: %q", stderr)
	}
}

func TestBatchConversion(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	testutil.WriteImage(t, filepath.Join(in, "a.png"), testutil.Solid(4, 4, color.White))
	testutil.WriteImage(t, filepath.Join(in, "b.gif"), testutil.Solid(4, 4, color.Black))

	stdout, _, err := run(in, out, "--batch", "--format", "tiff")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.tiff", "b.tiff"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if !strings.Contains(stdout, "Converted") {
		t.Errorf("summary not printed: %q", stdout)
	}
}

func TestBatchWithFailureReturnsError(t *testing.T) {
	in := t.TempDir()
	testutil.WriteImage(t, filepath.Join(in, "a.png"), testutil.Solid(4, 4, color.White))
	testutil.WriteFile(t, filepath.Join(in, "broken.jpg"), []byte("not a jpeg"))

	_, _, err := run(in, t.TempDir(), "--batch", "--format", "png")
	if err == nil {
		t.Fatal("expected error when a file fails")
	}
}

func TestBatchRejectsUnknownFormat(t *testing.T) {
	_, _, err := run(t.TempDir(), t.TempDir(), "--batch", "--format", "heic")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFormatsCommand(t *testing.T) {
	stdout, _, err := run("formats")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"JPEG", ".jpeg", "TIFF", ".tif", "WEBP"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("formats output missing %s:\n%s", want, stdout)
		}
	}
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	data := testutil.JPEGWithOrientation(t, testutil.Solid(12, 8, color.White), 6)
	path := testutil.WriteFile(t, filepath.Join(dir, "o.jpg"), data)

	stdout, _, err := run("inspect", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "12x8") || !strings.Contains(stdout, "Orientation: 6") {
		t.Fatalf("unexpected inspect output:\n%s", stdout)
	}
}
