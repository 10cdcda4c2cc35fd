//go:build gosseract

package tesswrap

import (
	"context"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	Version = gosseract.Version()
	Initialized = true
}

func newEngine() (Engine, error) {
	return &gosseractEngine{client: gosseract.NewClient()}, nil
}

// gosseractEngine uses the Tesseract C++ API via cgo.
// gosseract has no way to interrupt a recognition, so Stop is a no-op.
type gosseractEngine struct {
	client *gosseract.Client
	conf   int
}

func (e *gosseractEngine) Init(_ context.Context, dataPath, languages string) error {
	if dataPath != "" {
		if err := e.client.SetTessdataPrefix(dataPath); err != nil {
			return err
		}
	}
	if err := e.client.SetLanguage(SplitLanguages(languages)...); err != nil {
		return err
	}
	return e.client.DisableOutput()
}

func (e *gosseractEngine) SetPageSegMode(mode PageSegMode) error {
	return e.client.SetPageSegMode(gosseract.PageSegMode(mode))
}

func (e *gosseractEngine) SetImage(img []byte) error {
	e.conf = 0
	return e.client.SetImageFromBytes(img)
}

func (e *gosseractEngine) HOCRText(_ context.Context, progress ProgressFunc) (string, error) {
	out, err := e.client.HOCRText()
	if err != nil {
		return "", err
	}
	e.conf = e.meanWordConfidence()
	return out, nil
}

func (e *gosseractEngine) Text(_ context.Context, progress ProgressFunc) (string, error) {
	out, err := e.client.Text()
	if err != nil {
		return "", err
	}
	e.conf = e.meanWordConfidence()
	return strings.TrimSpace(out), nil
}

// meanWordConfidence mirrors Tesseract's MeanTextConf, which gosseract does not expose.
func (e *gosseractEngine) meanWordConfidence() int {
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return int(math.Round(sum / float64(len(boxes))))
}

func (e *gosseractEngine) MeanConfidence() int {
	return e.conf
}

func (e *gosseractEngine) Stop() {}

func (e *gosseractEngine) Clear() {
	// the next SetImage replaces the pix held by the client
	e.conf = 0
}

func (e *gosseractEngine) Close() error {
	return e.client.Close()
}
