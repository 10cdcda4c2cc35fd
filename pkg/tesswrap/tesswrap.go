/*
Package tesswrap is a small wrapper for Tesseract OCR v5.
A [Reader] owns exactly one engine handle and serializes every call into it.

It defaults to using the CLI.
Alternative engine implementations can be used by supplying build tags:
gosseract (cgo), tesseract_pure (purego/dlopen) or tesseract_wasm (wazero).
*/
package tesswrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// Initialized indicates if the compiled-in engine is usable at all
	Initialized bool = true
	// Version of the Tesseract engine, if known
	Version string
)

var (
	ErrInitialization = errors.New("tesseract could not be initialized")
	ErrNotInitialized = errors.New("reader not initialized")
	ErrRecognition    = errors.New("recognition failed")
	// ErrNoText is returned when recognition succeeded but the image contains no text.
	ErrNoText   = errors.New("no text found")
	ErrDisposed = errors.New("reader already closed")
	ErrBusy     = errors.New("reader busy")
	// ErrNoResult is returned by [Reader.Confidence] when there is no recognition result to report on.
	ErrNoResult = errors.New("no recognition result")
)

// PageSegMode controls how Tesseract partitions an image into text regions.
type PageSegMode int

const (
	PSM_OSD_ONLY PageSegMode = iota
	PSM_AUTO_OSD
	PSM_AUTO_ONLY
	PSM_AUTO
	PSM_SINGLE_COLUMN
	PSM_SINGLE_BLOCK_VERT_TEXT
	PSM_SINGLE_BLOCK
	PSM_SINGLE_LINE
	PSM_SINGLE_WORD
	PSM_CIRCLE_WORD
	PSM_SINGLE_CHAR
	PSM_SPARSE_TEXT
	PSM_SPARSE_TEXT_OSD
	PSM_RAW_LINE
)

func (m PageSegMode) Valid() bool {
	return m >= PSM_OSD_ONLY && m <= PSM_RAW_LINE
}

// Format selects the kind of text a [Reader] returns.
type Format string

const (
	// FormatHOCR is Tesseract's HTML based output with layout and confidence metadata
	FormatHOCR Format = "hocr"
	FormatText Format = "text"
)

// ProgressFunc receives the recognition progress in percent.
type ProgressFunc func(percent int)

// Options configure a [Reader].
type Options struct {
	// Directory containing <lang>.traineddata files. Empty means the engine's default location.
	DataPath string
	// Languages separated by `+`, e.g. "eng+deu". Default: eng
	Languages string
	// PSM_OSD_ONLY does not recognize any text, so the zero value selects PSM_AUTO_OSD.
	PageSegMode PageSegMode
	// Format of the text returned by [Reader.Recognize]. Default: hocr
	Format Format
	// Progress is called with 0 when recognition starts and 100 when it is done.
	// Engines that report progress natively call it in between.
	Progress ProgressFunc
	// Timeout applied to every recognition. Zero means no timeout.
	Timeout time.Duration
	// If true, Recognize returns ErrBusy instead of waiting for a recognition in flight.
	FailWhenBusy bool
	// NewEngine constructs the engine handle. Default: the engine compiled into this build.
	NewEngine func() (Engine, error)
	Logger    *slog.Logger
}

// Result of a single recognition
type Result struct {
	Text string
	// Mean confidence (0-100) of the recognized words
	Confidence int
	Format     Format
}

// Engine is the contract a Tesseract binding has to fulfill.
// All methods but Stop are called with exclusive access to the engine.
// Stop may be called concurrently with HOCRText and Text.
type Engine interface {
	Init(ctx context.Context, dataPath, languages string) error
	SetPageSegMode(mode PageSegMode) error
	SetImage(img []byte) error
	// HOCRText recognizes the current image and returns hOCR markup.
	HOCRText(ctx context.Context, progress ProgressFunc) (string, error)
	// Text recognizes the current image and returns plain text.
	Text(ctx context.Context, progress ProgressFunc) (string, error)
	// MeanConfidence of the last recognition
	MeanConfidence() int
	Stop()
	// Clear frees the current image and recognition results but keeps the engine loaded
	Clear()
	Close() error
}

func (o *Options) applyDefaults() error {
	if o.Languages == "" {
		o.Languages = "eng"
	}
	if o.Format == "" {
		o.Format = FormatHOCR
	}
	if o.Format != FormatHOCR && o.Format != FormatText {
		return fmt.Errorf("unknown output format %q", o.Format)
	}
	if o.PageSegMode == PSM_OSD_ONLY {
		o.PageSegMode = PSM_AUTO_OSD
	}
	if !o.PageSegMode.Valid() {
		return fmt.Errorf("page segmentation mode %d out of range", o.PageSegMode)
	}
	if o.NewEngine == nil {
		o.NewEngine = newEngine
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}
