package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"image-converter-go/internal/batch"
	"image-converter-go/internal/config"
	"image-converter-go/internal/converter"
	"image-converter-go/internal/format"
	"image-converter-go/internal/logger"
	"image-converter-go/internal/metadata"
	"image-converter-go/internal/watcher"
	"image-converter-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	verbose      bool
	quiet        bool
	batchMode    bool
	formatName   string
	quality      int
	resize       []int
	port         int
	initialScan  bool
	debounce     time.Duration
	withExiftool bool
)

// newRootCmd builds the command tree. Flag variables are rebound on every
// call so each invocation starts from the defaults.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "image-converter <input> <output>",
		Short: "Convert images between JPEG, PNG, BMP, GIF, TIFF and WebP",
		Long: `image-converter converts a single image, or every image in a folder,
into another format. EXIF orientation is applied before any resize, and
transparency is flattened onto white for formats without alpha.

Examples:
  image-converter photo.png photo.jpg --quality 85
  image-converter ./in ./out --batch --format webp --resize 800 600`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], args[1])
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	addConversionFlags(rootCmd)
	rootCmd.Flags().BoolVar(&batchMode, "batch", false, "treat input and output as directories")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Long: `Starts a web server with a graphical interface for the converter.
The page lets you pick single or batch mode, choose files and folders,
set format, quality and size, and follow the conversion log live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config, 8080)")

	watchCmd := &cobra.Command{
		Use:   "watch <input-dir> <output-dir>",
		Short: "Convert images as they appear in a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], args[1])
		},
	}
	addConversionFlags(watchCmd)
	watchCmd.Flags().BoolVar(&initialScan, "initial", false, "convert files already in the directory first")
	watchCmd.Flags().DurationVar(&debounce, "debounce", 0, "delay after the last write before converting (default from config)")

	inspectCmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show format, dimensions and metadata of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}
	inspectCmd.Flags().BoolVar(&withExiftool, "exiftool", false, "also list all tags reported by exiftool")

	formatsCmd := &cobra.Command{
		Use:   "formats",
		Short: "List supported formats and extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printFormats(cmd.OutOrStdout())
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, watchCmd, inspectCmd, formatsCmd)
	return rootCmd
}

func addConversionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&formatName, "format", "PNG", "output format: "+strings.Join(format.Names(), ", "))
	cmd.Flags().IntVar(&quality, "quality", converter.DefaultQuality, "output quality (1-100)")
	cmd.Flags().IntSliceVar(&resize, "resize", nil, "resize to WIDTH HEIGHT")
}

// normalizeResizeArgs rewrites "--resize W H" into "--resize=W,H" so the
// two-value form is accepted alongside the comma form.
func normalizeResizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--resize" && i+2 < len(args) && isNumber(args[i+1]) && isNumber(args[i+2]) {
			out = append(out, "--resize="+args[i+1]+","+args[i+2])
			i += 2
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// loadConfig loads the configuration and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Lookup("quality") != nil && flags.Changed("quality") {
		cfg.Conversion.Quality = quality
	}
	if flags.Lookup("format") != nil && flags.Changed("format") {
		cfg.Conversion.Format = formatName
	}
	if flags.Lookup("resize") != nil && flags.Changed("resize") {
		if len(resize) != 2 {
			return nil, fmt.Errorf("%w: --resize needs WIDTH and HEIGHT", converter.ErrValidation)
		}
		if resize[0] <= 0 || resize[1] <= 0 {
			return nil, fmt.Errorf("%w: --resize width and height must be positive, got %dx%d",
				converter.ErrValidation, resize[0], resize[1])
		}
		cfg.Conversion.Resize.Width = resize[0]
		cfg.Conversion.Resize.Height = resize[1]
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Lookup("debounce") != nil && flags.Changed("debounce") {
		cfg.Watch.DebounceMS = int(debounce / time.Millisecond)
	}
	if flags.Lookup("initial") != nil && flags.Changed("initial") {
		cfg.Watch.InitialScan = initialScan
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runConvert converts one file or, with --batch, one directory.
func runConvert(cmd *cobra.Command, input, output string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg, cmd.ErrOrStderr())
	runner := batch.NewRunner(converter.NewConverter(), log)
	opts := cfg.Options()

	if !batchMode {
		res := runner.ConvertFile(input, output, opts)
		if !res.Success {
			if errors.Is(res.Error, converter.ErrUnsupportedFormat) && !format.IsSupported(input) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Supported formats: %s\n", strings.Join(format.SupportedExtensions(), ", "))
			}
			return res.Error
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := runner.ConvertDirectory(ctx, batch.Params{
		InputDir:  input,
		OutputDir: output,
		Format:    cfg.OutputFormat(),
		Options:   opts,
	})
	if !quiet && stats.Found() > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\n"+stats.GetSummary())
	}
	if err != nil {
		return err
	}
	if stats.Failed() > 0 {
		return fmt.Errorf("%d of %d files failed to convert", stats.Failed(), stats.Found())
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg, cmd.ErrOrStderr())
	server := web.NewServer(cfg, log, converter.NewConverter())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Image Converter web interface started\n")
	fmt.Fprintf(out, "Open your browser at: http://%s\n", cfg.Address())
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Fprintln(out, "\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Fprintln(out, "Server stopped gracefully")
	return nil
}

// runWatch converts new files in a directory until interrupted.
func runWatch(cmd *cobra.Command, input, output string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg, cmd.ErrOrStderr())
	runner := batch.NewRunner(converter.NewConverter(), log)

	w, err := watcher.New(runner, log, batch.Params{
		InputDir:  input,
		OutputDir: output,
		Format:    cfg.OutputFormat(),
		Options:   cfg.Options(),
	}, watcher.Options{
		Debounce:    cfg.Debounce(),
		InitialScan: cfg.Watch.InitialScan,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := w.Start(ctx)
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), "\n"+stats.GetSummary())
	}
	if err != nil {
		return err
	}
	if stats.Failed() > 0 {
		return fmt.Errorf("%d files failed to convert", stats.Failed())
	}
	return nil
}

// runInspect prints metadata for a single image.
func runInspect(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg, cmd.ErrOrStderr())
	info, err := metadata.NewInspector(log, withExiftool).Inspect(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:        %s\n", info.Path)
	fmt.Fprintf(out, "Format:      %s (decoder: %s)\n", info.Format, info.Decoder)
	fmt.Fprintf(out, "Dimensions:  %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(out, "Size:        %d bytes\n", info.Size)
	fmt.Fprintf(out, "Orientation: %d\n", info.Orientation)
	if info.Date != nil {
		fmt.Fprintf(out, "Date:        %s\n", info.Date.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintln(out, "Date:        not found")
	}

	if len(info.Tags) > 0 {
		fmt.Fprintln(out, "\nTags:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, name := range info.SortedTagNames() {
			fmt.Fprintf(tw, "  %s\t%s\n", name, info.Tags[name])
		}
		tw.Flush()
	}
	return nil
}

func printFormats(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tEXTENSIONS\tALPHA")
	for _, f := range format.All() {
		alpha := "no"
		if f.SupportsAlpha() {
			alpha = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f, strings.Join(f.Extensions(), ", "), alpha)
	}
	tw.Flush()
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config, console io.Writer) *logrus.Logger {
	loggerCfg := logger.DefaultConfig()
	loggerCfg.Level = cfg.Logging.Level
	loggerCfg.FilePath = cfg.Logging.FilePath
	loggerCfg.MaxSize = cfg.Logging.MaxSize
	loggerCfg.MaxBackups = cfg.Logging.MaxBackups
	loggerCfg.MaxAge = cfg.Logging.MaxAge
	loggerCfg.Compress = cfg.Logging.Compress
	loggerCfg.Output = console

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(console)
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(normalizeResizeArgs(args))
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
