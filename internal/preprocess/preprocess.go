// Package preprocess prepares camera frames and scans for OCR of machine readable zones.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrRotation = errors.New("rotation must be a multiple of 90 degrees")

type Options struct {
	// Clockwise rotation applied to the image, in degrees
	Rotation int
	// Crop the largest centered square, which is where the document is expected in a camera frame
	CropSquare bool
	// Longer side in pixels. Larger images are scaled down. Zero keeps the size.
	MaxSize int
	// Sigma of the unsharp mask. Zero disables sharpening.
	Sharpen float64
	// Binarize with Otsu's threshold
	Binarize bool
}

// DefaultOptions are tuned for the OCR-B font of machine readable zones.
var DefaultOptions = Options{MaxSize: 2000, Sharpen: 1.0, Binarize: true}

// Decode reads any image format registered with package image, including BMP, TIFF and WebP.
// The EXIF orientation of JPEGs is applied.
func Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Prepare converts img to a normalized, sharpened and optionally binarized grayscale image.
func Prepare(img image.Image, o Options) (*image.NRGBA, error) {
	var out *image.NRGBA
	switch ((o.Rotation % 360) + 360) % 360 {
	case 0:
		out = imaging.Clone(img)
	// imaging rotates counter-clockwise
	case 90:
		out = imaging.Rotate270(img)
	case 180:
		out = imaging.Rotate180(img)
	case 270:
		out = imaging.Rotate90(img)
	default:
		return nil, fmt.Errorf("%w: %d", ErrRotation, o.Rotation)
	}
	if o.CropSquare {
		side := min(out.Bounds().Dx(), out.Bounds().Dy())
		out = imaging.CropCenter(out, side, side)
	}
	if o.MaxSize > 0 && max(out.Bounds().Dx(), out.Bounds().Dy()) > o.MaxSize {
		out = imaging.Fit(out, o.MaxSize, o.MaxSize, imaging.Lanczos)
	}
	out = imaging.Grayscale(out)
	out = NormalizeContrast(out)
	if o.Sharpen > 0 {
		out = imaging.Sharpen(out, o.Sharpen)
	}
	if o.Binarize {
		out = Threshold(out, Otsu(out))
	}
	return out, nil
}

// Process decodes data, prepares it and encodes the result as PNG.
func Process(data []byte, o Options) ([]byte, error) {
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	prepared, err := Prepare(img, o)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, prepared); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// histogram of the red channel, which equals luminance for grayscale images
func histogram(img *image.NRGBA) (h [256]int) {
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			h[row[x]]++
		}
	}
	return h
}

// NormalizeContrast stretches the gray levels of img to the full range.
// The darkest and brightest percent of pixels are clipped.
func NormalizeContrast(img *image.NRGBA) *image.NRGBA {
	h := histogram(img)
	total := img.Rect.Dx() * img.Rect.Dy()
	if total == 0 {
		return img
	}
	clip := total / 100
	lo, hi := 0, 255
	for n := 0; lo < 255; lo++ {
		if n += h[lo]; n > clip {
			break
		}
	}
	for n := 0; hi > 0; hi-- {
		if n += h[hi]; n > clip {
			break
		}
	}
	if hi <= lo {
		return img
	}
	scale := 255.0 / float64(hi-lo)
	var lut [256]uint8
	for i := range lut {
		v := (float64(i) - float64(lo)) * scale
		lut[i] = uint8(max(0, min(255, v+0.5)))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{lut[c.R], lut[c.G], lut[c.B], c.A}
	})
}

// Otsu returns the threshold that minimizes the intra-class variance of the gray levels of img.
func Otsu(img *image.NRGBA) uint8 {
	h := histogram(img)
	total := 0
	sum := 0.0
	for i, n := range h {
		total += n
		sum += float64(i * n)
	}
	if total == 0 {
		return 128
	}
	var (
		sumB, best float64
		wB         int
		threshold  uint8
	)
	for t := range 256 {
		wB += h[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * h[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// Threshold turns pixels brighter than t white and all others black.
func Threshold(img *image.NRGBA, t uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R > t {
			return color.NRGBA{255, 255, 255, c.A}
		}
		return color.NRGBA{0, 0, 0, c.A}
	})
}
