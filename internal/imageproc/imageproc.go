// Package imageproc wraps the image codec used by the thumbnail pipeline:
// content-sniffed decoding, bounded-box dimension math, Lanczos resampling
// and fixed-quality re-encoding.
//
// Resampling and most encoders go through github.com/disintegration/imaging;
// WebP is encoded with github.com/chai2010/webp. Decoders for BMP, TIFF and
// WebP come from golang.org/x/image and are registered with the standard
// image package by blank import.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the encoder quality for lossy formats.
const DefaultQuality = 85

// MaxPixels caps width*height for Decode. It matches the point at which
// Pillow refuses an image as a decompression bomb.
const MaxPixels = 2 * 89478485

var (
	// ErrUnsupportedFormat is returned by Decode when the bytes are not a
	// recognised image encoding.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge is returned by Decode when the header declares more
	// than MaxPixels pixels. No pixel buffer is allocated in that case.
	ErrImageTooLarge = errors.New("image too large")
)

// Format is an encoding format for thumbnails.
type Format string

// Supported encoding formats.
const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	GIF  Format = "gif"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WebP Format = "webp"
)

// String returns the upper-case format name, e.g. "PNG".
func (f Format) String() string {
	return strings.ToUpper(string(f))
}

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String renders the dimensions as "<W>x<H>".
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Fits reports whether d is within a maxW x maxH box on both axes.
func (d Dimensions) Fits(maxW, maxH int) bool {
	return d.Width <= maxW && d.Height <= maxH
}

// Image is a decoded image together with what the decoder learned about it.
type Image struct {
	Pixels image.Image
	// Detected is the format name reported by the decoder ("jpeg", "png", "webp", ...).
	Detected string
	// Format is the format the image will be re-encoded in.
	Format Format
	Size   Dimensions
}

// Decode interprets data as an image, inferring the format from content.
// The header is checked against MaxPixels before any pixels are decoded.
func Decode(data []byte) (*Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, decodeErr(err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return nil, fmt.Errorf("decode image: %dx%d is %d pixels, limit %d: %w",
			cfg.Width, cfg.Height, pixels, MaxPixels, ErrImageTooLarge)
	}

	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeErr(err)
	}

	b := img.Bounds()
	decoded := &Image{
		Pixels:   img,
		Detected: name,
		Format:   EncodingFormat(name),
		Size:     Dimensions{Width: b.Dx(), Height: b.Dy()},
	}

	log.Debug().
		Str("detected", name).
		Str("encodeAs", decoded.Format.String()).
		Str("size", decoded.Size.String()).
		Msg("Image decoded")

	return decoded, nil
}

func decodeErr(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return fmt.Errorf("decode image: %w", ErrUnsupportedFormat)
	}
	return fmt.Errorf("decode image: %w", err)
}

// EncodingFormat maps a decoder format name to the format used for
// re-encoding. Names that cannot be determined fall back to JPEG.
func EncodingFormat(name string) Format {
	switch f := Format(name); f {
	case JPEG, PNG, GIF, BMP, TIFF, WebP:
		return f
	default:
		return JPEG
	}
}

// Fit returns the largest dimensions within a maxW x maxH box that keep the
// aspect ratio of size. The bound side equals the box exactly and the other
// side is rounded to the nearest pixel, never below 1. Sizes that already
// fit are returned unchanged, so images are never upscaled.
func Fit(size Dimensions, maxW, maxH int) Dimensions {
	if size.Fits(maxW, maxH) || size.Width <= 0 || size.Height <= 0 {
		return size
	}

	w, h := float64(size.Width), float64(size.Height)
	if size.Width*maxH >= size.Height*maxW {
		return Dimensions{Width: maxW, Height: atLeastOne(math.Round(h * float64(maxW) / w))}
	}
	return Dimensions{Width: atLeastOne(math.Round(w * float64(maxH) / h)), Height: maxH}
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// Thumbnail scales img down to fit a maxW x maxH box with the Lanczos filter.
// Images that already fit are returned as-is without resampling.
func Thumbnail(img *Image, maxW, maxH int) (image.Image, Dimensions) {
	target := Fit(img.Size, maxW, maxH)
	if target == img.Size {
		return img.Pixels, target
	}
	return imaging.Resize(img.Pixels, target.Width, target.Height, imaging.Lanczos), target
}

// Encode serialises img in the given format. Quality applies to JPEG and
// WebP; the lossless encoders ignore it.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case WebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	case PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case GIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	case BMP:
		err = imaging.Encode(&buf, img, imaging.BMP)
	case TIFF:
		err = imaging.Encode(&buf, img, imaging.TIFF)
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
