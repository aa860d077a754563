package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"image-converter-go/internal/batch"
	"image-converter-go/internal/format"
	"image-converter-go/internal/logger"
	"image-converter-go/internal/statistics"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher converts images as they are written into a directory.
type Watcher struct {
	runner   *batch.Runner
	logger   *logrus.Logger
	params   batch.Params
	debounce time.Duration
	initial  bool

	w      *fsnotify.Watcher
	stats  *statistics.Statistics
	timers map[string]*time.Timer
	mu     sync.Mutex
	convMu sync.Mutex
	wg     sync.WaitGroup
}

// Options configures a Watcher.
type Options struct {
	Debounce    time.Duration
	InitialScan bool
}

// New returns a Watcher for p.InputDir. The input and output directories
// must differ, otherwise every output would trigger another conversion.
func New(runner *batch.Runner, logger *logrus.Logger, p batch.Params, opts Options) (*Watcher, error) {
	in, err := filepath.Abs(p.InputDir)
	if err != nil {
		return nil, err
	}
	out, err := filepath.Abs(p.OutputDir)
	if err != nil {
		return nil, err
	}
	if in == out {
		return nil, fmt.Errorf("input and output directories must differ: %s", in)
	}
	if info, err := os.Stat(in); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("input directory does not exist: %s", p.InputDir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(in); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", in, err)
	}

	p.InputDir = in
	p.OutputDir = out
	return &Watcher{
		runner:   runner,
		logger:   logger,
		params:   p,
		debounce: opts.Debounce,
		initial:  opts.InitialScan,
		w:        w,
		stats:    statistics.NewStatistics(),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start processes events until ctx is cancelled, then returns the
// accumulated statistics.
func (wr *Watcher) Start(ctx context.Context) (*statistics.Statistics, error) {
	defer wr.w.Close()

	if wr.initial {
		initial, err := wr.runner.ConvertDirectory(ctx, wr.params)
		wr.stats.Merge(initial)
		if err != nil {
			return wr.finish(), err
		}
	}

	logger.WithOperation(wr.logger, "watch").Infof("Watching %s for new images (output: %s, format: %s)",
		wr.params.InputDir, wr.params.OutputDir, wr.params.Format)

	for {
		select {
		case <-ctx.Done():
			return wr.finish(), nil
		case ev, ok := <-wr.w.Events:
			if !ok {
				return wr.finish(), nil
			}
			wr.handleEvent(ev)
		case err, ok := <-wr.w.Errors:
			if !ok {
				return wr.finish(), nil
			}
			wr.logger.Warnf("watcher error: %v", err)
		}
	}
}

// handleEvent schedules a conversion for files that were created or written.
func (wr *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !format.IsSupported(ev.Name) {
		return
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	path := ev.Name
	if t, ok := wr.timers[path]; ok && t.Stop() {
		t.Reset(wr.debounce)
		return
	}

	// A timer that already fired owns its wg slot; start a fresh one.
	wr.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(wr.debounce, func() {
		defer wr.wg.Done()
		wr.mu.Lock()
		if wr.timers[path] == t {
			delete(wr.timers, path)
		}
		wr.mu.Unlock()
		wr.convert(path)
	})
	wr.timers[path] = t
}

// convert converts one file. Conversions are serialized.
func (wr *Watcher) convert(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	wr.convMu.Lock()
	defer wr.convMu.Unlock()

	wr.stats.AddFilesFound(1)
	out := batch.OutputPath(wr.params.OutputDir, path, wr.params.Format)
	wr.stats.Record(wr.runner.ConvertFile(path, out, wr.params.Options))
}

// finish stops pending timers, waits for running conversions and finalizes
// the statistics.
func (wr *Watcher) finish() *statistics.Statistics {
	wr.mu.Lock()
	for path, t := range wr.timers {
		if t.Stop() {
			wr.wg.Done()
		}
		delete(wr.timers, path)
	}
	wr.mu.Unlock()

	wr.wg.Wait()
	wr.stats.Finalize()
	return wr.stats
}
