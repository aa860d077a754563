package metadata

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// EXIF orientation values as defined by the TIFF/EXIF specification.
const (
	OrientationUnspecified = 0
	OrientationNormal      = 1
	OrientationFlipH       = 2
	OrientationRotate180   = 3
	OrientationFlipV       = 4
	OrientationTranspose   = 5
	OrientationRotate270   = 6
	OrientationTransverse  = 7
	OrientationRotate90    = 8
)

// ReadOrientation returns the EXIF orientation embedded in encoded image data.
// Images without EXIF data, or with an out-of-range tag, report OrientationNormal.
func ReadOrientation(data []byte) int {
	orientation, _, err := readEXIF(data)
	if err != nil {
		return OrientationNormal
	}
	return orientation
}

// readEXIF decodes the EXIF block of data, returning the orientation and the
// capture date when present.
func readEXIF(data []byte) (int, *time.Time, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return OrientationNormal, nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	orientation := OrientationNormal
	if tag, err := x.Get(exif.Orientation); err == nil {
		if o, err := tag.Int(0); err == nil && o >= OrientationNormal && o <= OrientationRotate90 {
			orientation = o
		}
	}

	if tm, err := x.DateTime(); err == nil {
		return orientation, &tm, nil
	}

	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized} {
		field, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := field.StringVal()
		if err != nil {
			continue
		}
		if date := parseEXIFDateTime(s); date != nil {
			return orientation, date, nil
		}
	}
	return orientation, nil, nil
}

// parseEXIFDateTime parses the date layouts seen in EXIF DateTime fields.
func parseEXIFDateTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
