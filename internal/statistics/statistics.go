package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"image-converter-go/internal/converter"
)

// Statistics aggregates the results of a conversion run.
type Statistics struct {
	FilesFound     int64
	FilesConverted int64
	FilesFailed    int64

	BytesRead    int64
	BytesWritten int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	FormatStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents a failed conversion.
type StatError struct {
	FilePath  string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// AddFilesFound increases the count of discovered files by n.
func (s *Statistics) AddFilesFound(n int) {
	atomic.AddInt64(&s.FilesFound, int64(n))
}

// Record folds a single conversion result into the statistics.
func (s *Statistics) Record(res converter.Result) {
	if res.Success {
		atomic.AddInt64(&s.FilesConverted, 1)
		atomic.AddInt64(&s.BytesRead, res.InputSize)
		atomic.AddInt64(&s.BytesWritten, res.OutputSize)

		s.mutex.Lock()
		s.FormatStats[res.Format.String()]++
		s.mutex.Unlock()
		return
	}

	atomic.AddInt64(&s.FilesFailed, 1)
	msg := res.Message
	if res.Error != nil {
		msg = res.Error.Error()
	}

	s.mutex.Lock()
	s.Errors = append(s.Errors, StatError{
		FilePath:  res.InputPath,
		Error:     msg,
		Timestamp: res.FinishedAt,
	})
	s.mutex.Unlock()
}

// Merge adds the counters of other into s. Timing fields of s are kept.
func (s *Statistics) Merge(other *Statistics) {
	if other == nil {
		return
	}
	atomic.AddInt64(&s.FilesFound, other.Found())
	atomic.AddInt64(&s.FilesConverted, other.Converted())
	atomic.AddInt64(&s.FilesFailed, other.Failed())
	atomic.AddInt64(&s.BytesRead, atomic.LoadInt64(&other.BytesRead))
	atomic.AddInt64(&s.BytesWritten, atomic.LoadInt64(&other.BytesWritten))

	other.mutex.RLock()
	formats := make(map[string]int64, len(other.FormatStats))
	for k, v := range other.FormatStats {
		formats[k] = v
	}
	errs := append([]StatError(nil), other.Errors...)
	other.mutex.RUnlock()

	s.mutex.Lock()
	for k, v := range formats {
		s.FormatStats[k] += v
	}
	s.Errors = append(s.Errors, errs...)
	s.mutex.Unlock()
}

// Finalize records the end time and duration.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Found returns the number of files discovered.
func (s *Statistics) Found() int64 {
	return atomic.LoadInt64(&s.FilesFound)
}

// Converted returns the number of successful conversions.
func (s *Statistics) Converted() int64 {
	return atomic.LoadInt64(&s.FilesConverted)
}

// Failed returns the number of failed conversions.
func (s *Statistics) Failed() int64 {
	return atomic.LoadInt64(&s.FilesFailed)
}

// GetDuration returns the total duration of the run.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}

// GetSummary returns a formatted summary of the run.
func (s *Statistics) GetSummary() string {
	duration := s.GetDuration()

	return fmt.Sprintf(`Conversion Summary:

Files:
		Found: %d
		Converted: %d
		Failed: %d

Data:
		Read: %s
		Written: %s

Duration: %v
%s`,
		s.Found(),
		s.Converted(),
		s.Failed(),
		formatBytes(atomic.LoadInt64(&s.BytesRead)),
		formatBytes(atomic.LoadInt64(&s.BytesWritten)),
		duration.Round(time.Millisecond),
		s.GetFormatBreakdown())
}

// GetFormatBreakdown returns the number of files written per output format.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No files written"
	}

	names := make([]string, 0, len(s.FormatStats))
	for name := range s.FormatStats {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Output Formats:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %d\n", name, s.FormatStats[name])
	}
	return b.String()
}

// GetErrorSummary returns a summary of failed conversions.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during conversion"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s\n",
			err.Timestamp.Format("15:04:05"),
			err.FilePath,
			err.Error)
	}
	return b.String()
}

// Snapshot returns the counters as a map suitable for JSON responses.
func (s *Statistics) Snapshot() map[string]interface{} {
	s.mutex.RLock()
	formats := make(map[string]int64, len(s.FormatStats))
	for k, v := range s.FormatStats {
		formats[k] = v
	}
	errs := len(s.Errors)
	s.mutex.RUnlock()

	return map[string]interface{}{
		"found":         s.Found(),
		"converted":     s.Converted(),
		"failed":        s.Failed(),
		"bytes_read":    atomic.LoadInt64(&s.BytesRead),
		"bytes_written": atomic.LoadInt64(&s.BytesWritten),
		"formats":       formats,
		"errors":        errs,
		"duration_ms":   s.GetDuration().Milliseconds(),
	}
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
