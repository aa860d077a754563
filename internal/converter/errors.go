package converter

import "errors"

// Error kinds reported by conversions. Callers match them with errors.Is.
var (
	ErrInputNotFound     = errors.New("input not found")
	ErrOutputDirectory   = errors.New("cannot create output directory")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCodec             = errors.New("image decode/encode failed")
	ErrValidation        = errors.New("invalid argument")
	ErrInterrupted       = errors.New("conversion interrupted")
)
