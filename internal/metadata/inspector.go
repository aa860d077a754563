package metadata

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"sort"
	"time"

	"image-converter-go/internal/format"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Info describes an image file as reported by the inspect command.
type Info struct {
	Path        string
	Format      format.Format
	Decoder     string
	Width       int
	Height      int
	Size        int64
	Orientation int
	Date        *time.Time
	Tags        map[string]string
}

// Inspector reads image metadata using goexif and, when available, exiftool.
type Inspector struct {
	logger      *logrus.Logger
	useExiftool bool
}

// NewInspector returns an Inspector. exiftool is only consulted when
// useExiftool is set and the binary can be started.
func NewInspector(logger *logrus.Logger, useExiftool bool) *Inspector {
	return &Inspector{logger: logger, useExiftool: useExiftool}
}

// Inspect returns metadata for the image at path.
func (i *Inspector) Inspect(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	info := &Info{
		Path:        path,
		Size:        int64(len(data)),
		Orientation: OrientationNormal,
	}
	info.Format, _ = format.FromPath(path)

	cfg, decoder, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	info.Decoder = decoder
	info.Width = cfg.Width
	info.Height = cfg.Height

	if orientation, date, err := readEXIF(data); err == nil {
		info.Orientation = orientation
		info.Date = date
	} else {
		i.logger.Debugf("No EXIF block in %s: %v", path, err)
	}

	if i.useExiftool {
		tags, err := i.exiftoolTags(path)
		if err != nil {
			i.logger.Debugf("exiftool unavailable for %s: %v", path, err)
		} else {
			info.Tags = tags
		}
	}

	return info, nil
}

// exiftoolTags extracts all tags exiftool knows about as strings.
func (i *Inspector) exiftoolTags(path string) (map[string]string, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, err
	}
	defer et.Close()

	files := et.ExtractMetadata(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("no metadata returned")
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}

	tags := make(map[string]string, len(files[0].Fields))
	for k, v := range files[0].Fields {
		tags[k] = fmt.Sprintf("%v", v)
	}
	return tags, nil
}

// SortedTagNames returns the tag names of info in lexicographic order.
func (info *Info) SortedTagNames() []string {
	names := make([]string, 0, len(info.Tags))
	for k := range info.Tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
