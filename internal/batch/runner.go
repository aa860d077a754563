package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"image-converter-go/internal/converter"
	"image-converter-go/internal/format"
	"image-converter-go/internal/logger"
	"image-converter-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// LogHookFunc receives every status line a run produces, e.g. to mirror it
// in the web interface. It is called synchronously from the running goroutine.
type LogHookFunc func(level, message string)

// Params describes a directory conversion.
type Params struct {
	InputDir  string
	OutputDir string
	Format    format.Format
	Options   converter.Options
}

// Runner drives the converter over single files and directories.
type Runner struct {
	converter *converter.Converter
	logger    *logrus.Logger
	logHook   LogHookFunc
}

// NewRunner returns a new Runner.
func NewRunner(conv *converter.Converter, logger *logrus.Logger) *Runner {
	return NewRunnerWithLogHook(conv, logger, nil)
}

// NewRunnerWithLogHook returns a Runner that forwards status lines to hook.
func NewRunnerWithLogHook(conv *converter.Converter, logger *logrus.Logger, hook LogHookFunc) *Runner {
	return &Runner{
		converter: conv,
		logger:    logger,
		logHook:   hook,
	}
}

// ConvertFile converts one file. Inputs with an unrecognized extension are
// rejected before any decode attempt.
func (r *Runner) ConvertFile(inputPath, outputPath string, opts converter.Options) converter.Result {
	if !format.IsSupported(inputPath) {
		res := converter.Result{
			InputPath:  inputPath,
			OutputPath: outputPath,
			Error: fmt.Errorf("%w: %s (supported: %s)", converter.ErrUnsupportedFormat,
				inputPath, strings.Join(format.SupportedExtensions(), ", ")),
		}
		res.Message = fmt.Sprintf("conversion error (%s): %v", inputPath, res.Error)
		r.report(logrus.ErrorLevel, res.Message)
		return res
	}
	return r.convert(inputPath, outputPath, opts)
}

// ConvertDirectory converts every supported file directly inside
// p.InputDir into p.OutputDir. Per-file failures are recorded in the
// returned statistics and never stop the run. Cancelling ctx stops the run
// between files with converter.ErrInterrupted.
func (r *Runner) ConvertDirectory(ctx context.Context, p Params) (*statistics.Statistics, error) {
	stats := statistics.NewStatistics()
	defer stats.Finalize()

	if err := converter.ValidateQuality(p.Options.Quality); err != nil {
		r.report(logrus.ErrorLevel, err.Error())
		return stats, err
	}
	if p.Format == format.Unknown {
		err := fmt.Errorf("%w: no output format selected", converter.ErrValidation)
		r.report(logrus.ErrorLevel, err.Error())
		return stats, err
	}

	info, err := os.Stat(p.InputDir)
	if err != nil || !info.IsDir() {
		err := fmt.Errorf("%w: input directory %s", converter.ErrInputNotFound, p.InputDir)
		r.report(logrus.ErrorLevel, err.Error())
		return stats, err
	}

	files, err := Discover(p.InputDir)
	if err != nil {
		r.report(logrus.ErrorLevel, fmt.Sprintf("failed to list %s: %v", p.InputDir, err))
		return stats, fmt.Errorf("list input directory: %w", err)
	}
	stats.AddFilesFound(len(files))

	if len(files) == 0 {
		r.report(logrus.InfoLevel, fmt.Sprintf("no image files to convert in %s", p.InputDir))
		return stats, nil
	}

	r.report(logrus.InfoLevel, fmt.Sprintf("batch conversion started: %d files", len(files)))
	r.report(logrus.InfoLevel, fmt.Sprintf("output format: %s", p.Format))
	if p.Options.Resize() {
		r.report(logrus.InfoLevel, fmt.Sprintf("resize: %dx%d", p.Options.Width, p.Options.Height))
	}

	for _, in := range files {
		if err := ctx.Err(); err != nil {
			r.report(logrus.WarnLevel, "batch conversion interrupted")
			return stats, fmt.Errorf("%w: %v", converter.ErrInterrupted, err)
		}
		stats.Record(r.convert(in, OutputPath(p.OutputDir, in, p.Format), p.Options))
	}

	r.report(logrus.InfoLevel, "batch conversion complete")
	r.report(logrus.InfoLevel, fmt.Sprintf("succeeded: %d files", stats.Converted()))
	if stats.Failed() > 0 {
		r.report(logrus.WarnLevel, fmt.Sprintf("failed: %d files", stats.Failed()))
	}
	return stats, nil
}

// convert runs the converter and reports the outcome.
func (r *Runner) convert(inputPath, outputPath string, opts converter.Options) converter.Result {
	logger.WithFileOperation(r.logger, inputPath, "convert").Debugf("Converting to %s", outputPath)

	res := r.converter.Convert(inputPath, outputPath, opts)
	if res.Success {
		r.report(logrus.InfoLevel, res.Message)
	} else {
		r.report(logrus.ErrorLevel, res.Message)
	}
	return res
}

// report logs message and forwards it to the hook.
func (r *Runner) report(level logrus.Level, message string) {
	r.logger.Log(level, message)
	if r.logHook != nil {
		r.logHook(level.String(), message)
	}
}

// Discover returns the supported image files directly inside dir, sorted
// by file name. Extensions match case-insensitively.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if format.IsSupported(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// OutputPath returns outputDir/<stem of input><canonical extension of f>.
func OutputPath(outputDir, inputPath string, f format.Format) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+f.Extension())
}
