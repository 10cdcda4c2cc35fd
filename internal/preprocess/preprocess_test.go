package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// twoTone returns an image with the left half set to dark and the right half to light.
func twoTone(w, h int, dark, light uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := light
			if x < w/2 {
				v = dark
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func TestOtsu(t *testing.T) {
	img := twoTone(40, 10, 50, 200)
	th := Otsu(img)
	if th < 50 || th >= 200 {
		t.Fatalf("threshold %d does not separate the two levels", th)
	}
	bin := Threshold(img, th)
	if bin.NRGBAAt(0, 0).R != 0 || bin.NRGBAAt(39, 0).R != 255 {
		t.Errorf("unexpected binarization %v %v", bin.NRGBAAt(0, 0), bin.NRGBAAt(39, 0))
	}
}

func TestOtsuEmpty(t *testing.T) {
	if th := Otsu(image.NewNRGBA(image.Rect(0, 0, 0, 0))); th != 128 {
		t.Errorf("got %d for an empty image", th)
	}
}

func TestNormalizeContrast(t *testing.T) {
	img := NormalizeContrast(twoTone(40, 10, 100, 150))
	if lo, hi := img.NRGBAAt(0, 0).R, img.NRGBAAt(39, 0).R; lo != 0 || hi != 255 {
		t.Errorf("got levels %d and %d, want 0 and 255", lo, hi)
	}
	flat := twoTone(10, 10, 90, 90)
	if got := NormalizeContrast(flat).NRGBAAt(0, 0).R; got != 90 {
		t.Errorf("a flat image should stay as it is, got %d", got)
	}
}

func TestPrepare(t *testing.T) {
	src := twoTone(60, 20, 30, 220)
	var cases = []struct {
		name string
		opts Options
		w, h int
	}{
		{"unchanged size", Options{}, 60, 20},
		{"rotated", Options{Rotation: 90}, 20, 60},
		{"rotated negative", Options{Rotation: -90}, 20, 60},
		{"upside down", Options{Rotation: 180}, 60, 20},
		{"square", Options{CropSquare: true}, 20, 20},
		{"scaled down", Options{MaxSize: 30}, 30, 10},
		{"defaults", DefaultOptions, 60, 20},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := Prepare(src, c.opts)
			if err != nil {
				t.Fatal(err)
			}
			if out.Bounds().Dx() != c.w || out.Bounds().Dy() != c.h {
				t.Errorf("got %v, want %dx%d", out.Bounds(), c.w, c.h)
			}
			px := out.NRGBAAt(out.Bounds().Dx()/2, out.Bounds().Dy()/2)
			if px.R != px.G || px.G != px.B {
				t.Errorf("not grayscale: %v", px)
			}
		})
	}
}

func TestPrepareUpsideDown(t *testing.T) {
	out, err := Prepare(twoTone(40, 10, 30, 220), Options{Rotation: 180, Binarize: true})
	if err != nil {
		t.Fatal(err)
	}
	// the dark half is on the right now
	if out.NRGBAAt(0, 0).R != 255 || out.NRGBAAt(39, 0).R != 0 {
		t.Errorf("unexpected pixels %v %v", out.NRGBAAt(0, 0), out.NRGBAAt(39, 0))
	}
}

func TestPrepareInvalidRotation(t *testing.T) {
	if _, err := Prepare(twoTone(4, 4, 0, 255), Options{Rotation: 45}); !errors.Is(err, ErrRotation) {
		t.Errorf("got %v, want ErrRotation", err)
	}
}

func TestProcess(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, twoTone(40, 10, 30, 220)); err != nil {
		t.Fatal(err)
	}
	out, err := Process(buf.Bytes(), DefaultOptions)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 40 {
		t.Errorf("got %v", img.Bounds())
	}
	if _, err := Process([]byte("not an image"), DefaultOptions); err == nil {
		t.Error("expected a decoding error")
	}
}
