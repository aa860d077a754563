package converter

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"image-converter-go/internal/format"
	"image-converter-go/internal/metadata"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	// go-webp does not register a decoder with image; x/image does.
	// imaging already registers BMP and TIFF.
	_ "golang.org/x/image/webp"
)

// webpMethod is the slowest, smallest libwebp compression method.
const webpMethod = 6

// applyOrientation rotates or flips img so that it displays upright for the
// given EXIF orientation.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case metadata.OrientationFlipH:
		return imaging.FlipH(img)
	case metadata.OrientationRotate180:
		return imaging.Rotate180(img)
	case metadata.OrientationFlipV:
		return imaging.FlipV(img)
	case metadata.OrientationTranspose:
		return imaging.Transpose(img)
	case metadata.OrientationRotate270:
		return imaging.Rotate270(img)
	case metadata.OrientationTransverse:
		return imaging.Transverse(img)
	case metadata.OrientationRotate90:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// hasAlpha reports whether img may contain non-opaque pixels.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// flatten composites img over an opaque white canvas of the same size.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// encode writes img to w using the encoder options for f.
func encode(w io.Writer, img image.Image, f format.Format, quality int) error {
	switch f {
	case format.JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case format.PNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case format.BMP:
		return imaging.Encode(w, img, imaging.BMP)
	case format.GIF:
		return imaging.Encode(w, img, imaging.GIF, imaging.GIFNumColors(256))
	case format.TIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	case format.WEBP:
		opts, err := webpOptions(quality)
		if err != nil {
			return err
		}
		return webp.Encode(w, img, opts)
	default:
		return fmt.Errorf("no encoder for %s", f)
	}
}

// webpOptions returns lossy encoder options at quality with maximum effort.
func webpOptions(quality int) (*encoder.Options, error) {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return nil, fmt.Errorf("webp options: %w", err)
	}
	opts.Method = webpMethod
	return opts, nil
}
