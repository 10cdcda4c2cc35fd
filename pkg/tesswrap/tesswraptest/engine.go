// Package tesswraptest provides a scripted [tesswrap.Engine] for tests of code using tesswrap.
package tesswraptest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
)

// Page is what the Engine recognizes for a given image
type Page struct {
	// Lines of text, one hOCR line each. No lines means a blank image.
	Lines      []string
	Confidence int
	// Err is returned instead of a result
	Err error
	// Panic makes the engine panic during recognition
	Panic bool
}

// Engine recognizes images by looking them up in Pages, keyed by the image bytes.
// If Block is not nil, every recognition waits until it is closed or the engine is stopped.
type Engine struct {
	Pages   map[string]Page
	InitErr error
	Block   chan struct{}

	// Entered receives a value whenever a recognition starts, if not nil
	Entered chan struct{}

	mu        sync.Mutex
	img       []byte
	conf      int
	stopCh    chan struct{}
	closed    bool
	cleared   int
	stopped   int
	languages string
	psm       tesswrap.PageSegMode

	inFlight    atomic.Int32
	MaxInFlight atomic.Int32
}

// New returns an Engine recognizing the given pages.
func New(pages map[string]Page) *Engine {
	return &Engine{Pages: pages}
}

// Factory returns a constructor usable as [tesswrap.Options.NewEngine].
func (e *Engine) Factory() func() (tesswrap.Engine, error) {
	return func() (tesswrap.Engine, error) {
		return e, nil
	}
}

// NewFactory returns a constructor creating a fresh Engine for the given pages on every call.
func NewFactory(pages map[string]Page) func() (tesswrap.Engine, error) {
	return func() (tesswrap.Engine, error) {
		return New(pages), nil
	}
}

// HOCR renders lines of text as hOCR markup with the given word confidence.
// Words are escaped like Tesseract does, so MRZ fillers (<) survive parsing.
func HOCR(lines []string, conf int) string {
	var sb strings.Builder
	sb.WriteString("<html><body><div class='ocr_page' id='page_1' title='bbox 0 0 100 100'>")
	sb.WriteString("<div class='ocr_carea' id='block_1_1'><p class='ocr_par' id='par_1_1'>")
	for i, line := range lines {
		fmt.Fprintf(&sb, "<span class='ocr_line' id='line_1_%d'>", i+1)
		for j, word := range strings.Fields(line) {
			fmt.Fprintf(&sb, "<span class='ocrx_word' id='word_1_%d_%d' title='bbox 0 0 1 1; x_wconf %d'>%s</span> ", i+1, j+1, conf, html.EscapeString(word))
		}
		sb.WriteString("</span>\n")
	}
	sb.WriteString("</p></div></div></body></html>")
	return sb.String()
}

func (e *Engine) Init(_ context.Context, _, languages string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.languages = languages
	return e.InitErr
}

func (e *Engine) SetPageSegMode(mode tesswrap.PageSegMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.psm = mode
	return nil
}

func (e *Engine) SetImage(img []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine closed")
	}
	e.img = img
	e.conf = 0
	return nil
}

func (e *Engine) recognize(ctx context.Context) (Page, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.MaxInFlight.Load()
		if n <= m || e.MaxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	e.mu.Lock()
	img := e.img
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()
	if e.Entered != nil {
		e.Entered <- struct{}{}
	}
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-stopCh:
			return Page{}, errors.New("stopped")
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if img == nil {
		return Page{}, errors.New("no image set")
	}
	page, ok := e.Pages[string(img)]
	if !ok {
		return Page{}, errors.New("unreadable image")
	}
	if page.Panic {
		panic("engine crashed")
	}
	if page.Err != nil {
		return Page{}, page.Err
	}
	e.mu.Lock()
	e.conf = page.Confidence
	e.mu.Unlock()
	return page, nil
}

func (e *Engine) HOCRText(ctx context.Context, progress tesswrap.ProgressFunc) (string, error) {
	page, err := e.recognize(ctx)
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(50)
	}
	return HOCR(page.Lines, page.Confidence), nil
}

func (e *Engine) Text(ctx context.Context, progress tesswrap.ProgressFunc) (string, error) {
	page, err := e.recognize(ctx)
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(50)
	}
	return strings.Join(page.Lines, "\n"), nil
}

func (e *Engine) MeanConfidence() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conf
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped++
	if e.stopCh != nil {
		select {
		case <-e.stopCh:
		default:
			close(e.stopCh)
		}
	}
}

func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.img = nil
	e.conf = 0
	e.cleared++
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Cleared returns how often Clear has been called.
func (e *Engine) Cleared() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleared
}

// Stopped returns how often Stop has been called.
func (e *Engine) Stopped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) Languages() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.languages
}

func (e *Engine) PageSegMode() tesswrap.PageSegMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.psm
}
