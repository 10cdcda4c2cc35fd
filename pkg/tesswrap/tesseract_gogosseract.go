//go:build tesseract_wasm

package tesswrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/danlock/gogosseract"
	"github.com/johbar/mrz-reader-service/internal/hocr"
)

// the wasm build of Tesseract ships without trained data
const defaultDataPath = "/usr/share/tesseract-ocr/5/tessdata"

func init() {
	Version = "gogosseract"
	Initialized = true
}

func newEngine() (Engine, error) {
	return &wasmEngine{}, nil
}

// wasmEngine runs Tesseract compiled to WebAssembly inside wazero.
// It supports a single language, since gogosseract loads exactly one trained data file.
type wasmEngine struct {
	trainingData []byte
	language     string
	tess         *gogosseract.Tesseract
	conf         int

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (e *wasmEngine) Init(_ context.Context, dataPath, languages string) error {
	langs := SplitLanguages(languages)
	if len(langs) != 1 {
		return fmt.Errorf("exactly one language is supported, got %q", languages)
	}
	if dataPath == "" {
		dataPath = defaultDataPath
	}
	data, err := os.ReadFile(filepath.Join(dataPath, langs[0]+trainedDataExt))
	if err != nil {
		return err
	}
	e.trainingData = data
	e.language = langs[0]
	return nil
}

// SetPageSegMode compiles and starts the wasm module, because
// gogosseract only accepts variables at construction time.
func (e *wasmEngine) SetPageSegMode(mode PageSegMode) error {
	if e.trainingData == nil {
		return errors.New("engine not initialized")
	}
	if e.tess != nil {
		if err := e.tess.Close(context.Background()); err != nil {
			return err
		}
	}
	cfg := gogosseract.Config{
		Language:     e.language,
		TrainingData: bytes.NewReader(e.trainingData),
		Variables:    map[string]string{"tessedit_pageseg_mode": strconv.Itoa(int(mode))},
		// While Tesseract's output is very useful for debugging, we silence it
		Stderr: io.Discard,
		Stdout: io.Discard,
	}
	tess, err := gogosseract.New(context.Background(), cfg)
	if err != nil {
		return err
	}
	e.tess = tess
	return nil
}

func (e *wasmEngine) SetImage(img []byte) error {
	if e.tess == nil {
		return errors.New("engine not initialized")
	}
	e.conf = 0
	return e.tess.LoadImage(context.Background(), bytes.NewReader(img), gogosseract.LoadImageOptions{})
}

func (e *wasmEngine) HOCRText(ctx context.Context, progress ProgressFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()
	out, err := e.tess.GetHOCR(ctx, func(p int32) {
		if progress != nil {
			progress(int(p))
		}
	})
	if err != nil {
		return "", err
	}
	doc, err := hocr.Parse(strings.NewReader(out))
	if err != nil {
		return "", err
	}
	e.conf = doc.MeanConfidence()
	return out, nil
}

func (e *wasmEngine) Text(ctx context.Context, progress ProgressFunc) (string, error) {
	// hOCR carries word confidences, plain text does not
	out, err := e.HOCRText(ctx, progress)
	if err != nil {
		return "", err
	}
	doc, err := hocr.Parse(strings.NewReader(out))
	if err != nil {
		return "", err
	}
	return doc.PlainText(), nil
}

func (e *wasmEngine) MeanConfidence() int {
	return e.conf
}

func (e *wasmEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *wasmEngine) Clear() {
	e.conf = 0
	if e.tess != nil {
		_ = e.tess.ClearImage(context.Background())
	}
}

func (e *wasmEngine) Close() error {
	if e.tess == nil {
		return nil
	}
	err := e.tess.Close(context.Background())
	e.tess = nil
	return err
}
