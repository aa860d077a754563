package converter

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"image-converter-go/internal/format"
	"image-converter-go/internal/metadata"

	"github.com/disintegration/imaging"
)

const (
	MinQuality     = 1
	MaxQuality     = 100
	DefaultQuality = 95
)

// Options controls a single conversion.
type Options struct {
	Quality int
	// Width and Height are both zero (keep size) or both positive.
	Width  int
	Height int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Quality: DefaultQuality}
}

// Resize reports whether the options request a resize.
func (o Options) Resize() bool {
	return o.Width > 0 && o.Height > 0
}

// Validate checks the quality bound and the resize pairing.
func (o Options) Validate() error {
	return errors.Join(ValidateQuality(o.Quality), ValidateResize(o.Width, o.Height))
}

// ValidateQuality checks that q lies in [MinQuality, MaxQuality].
func ValidateQuality(q int) error {
	if q < MinQuality || q > MaxQuality {
		return fmt.Errorf("%w: quality must be between %d and %d, got %d", ErrValidation, MinQuality, MaxQuality, q)
	}
	return nil
}

// ValidateResize checks that width and height are both zero or both positive.
func ValidateResize(w, h int) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("%w: resize dimensions must be positive, got %dx%d", ErrValidation, w, h)
	}
	if (w == 0) != (h == 0) {
		return fmt.Errorf("%w: resize needs both width and height, got %dx%d", ErrValidation, w, h)
	}
	return nil
}

// Result describes the outcome of converting one file.
type Result struct {
	InputPath  string
	OutputPath string
	Format     format.Format
	InputSize  int64
	OutputSize int64
	Width      int
	Height     int
	Success    bool
	Message    string
	Error      error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Converter converts single image files. It keeps no per-run state and may
// be shared between goroutines.
type Converter struct{}

// NewConverter returns a Converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Convert reads inputPath, applies opts and writes the result to outputPath
// in the format implied by its extension, replacing any existing file.
func (c *Converter) Convert(inputPath, outputPath string, opts Options) Result {
	res := Result{
		InputPath:  inputPath,
		OutputPath: outputPath,
		StartedAt:  time.Now(),
	}

	if err := opts.Validate(); err != nil {
		return res.fail(err)
	}

	outFormat, ok := format.FromPath(outputPath)
	if !ok {
		return res.fail(fmt.Errorf("%w: cannot write %q (supported: %v)", ErrUnsupportedFormat, filepath.Ext(outputPath), format.SupportedExtensions()))
	}
	res.Format = outFormat

	info, err := os.Stat(inputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res.fail(fmt.Errorf("%w: %s", ErrInputNotFound, inputPath))
		}
		return res.fail(fmt.Errorf("%w: %s: %v", ErrInputNotFound, inputPath, err))
	}
	if info.IsDir() {
		return res.fail(fmt.Errorf("%w: %s is a directory", ErrInputNotFound, inputPath))
	}
	res.InputSize = info.Size()

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return res.fail(fmt.Errorf("%w: %s: %v", ErrOutputDirectory, dir, err))
		}
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return res.fail(fmt.Errorf("%w: read %s: %v", ErrCodec, inputPath, err))
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return res.fail(fmt.Errorf("%w: decode %s: %v", ErrCodec, inputPath, err))
	}
	img = applyOrientation(img, metadata.ReadOrientation(data))

	if opts.Resize() {
		img = imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
	}

	if !outFormat.SupportsAlpha() && hasAlpha(img) {
		img = flatten(img)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, outFormat, opts.Quality); err != nil {
		return res.fail(fmt.Errorf("%w: encode %s as %s: %v", ErrCodec, outputPath, outFormat, err))
	}

	tmpPath := outputPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		_ = os.Remove(tmpPath)
		return res.fail(fmt.Errorf("%w: write %s: %v", ErrCodec, tmpPath, err))
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return res.fail(fmt.Errorf("%w: rename %s: %v", ErrCodec, outputPath, err))
	}

	bounds := img.Bounds()
	res.Width = bounds.Dx()
	res.Height = bounds.Dy()
	res.OutputSize = int64(buf.Len())
	res.Success = true
	res.Message = fmt.Sprintf("converted %s -> %s", inputPath, outputPath)
	res.FinishedAt = time.Now()
	return res
}

func (r Result) fail(err error) Result {
	r.Success = false
	r.Error = err
	r.Message = fmt.Sprintf("conversion error (%s): %v", r.InputPath, err)
	r.FinishedAt = time.Now()
	return r
}
