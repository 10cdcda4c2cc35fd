package tesswrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/johbar/mrz-reader-service/internal/hocr"
)

// Reader recognizes text in images using a single Tesseract engine handle.
// It is safe for concurrent use. Recognitions are serialized: at most one is in flight at any time.
type Reader struct {
	opts   Options
	engine Engine
	log    *slog.Logger
	// slot holds a token while a goroutine has exclusive access to engine
	slot chan struct{}
	// closed when Close is called
	done chan struct{}

	mu        sync.Mutex
	closed    bool
	hasResult bool
	conf      int

	// cancel is set while a recognition is in flight. Only the slot holder changes it.
	cancel context.CancelFunc
	// gen counts recognitions, identifying the one in flight
	gen uint64
}

type outcome struct {
	res Result
	err error
}

// New creates a Reader and initializes its engine with the given trained data, languages and
// page segmentation mode. If anything goes wrong, the error wraps [ErrInitialization]
// and no engine resources are left behind.
// Without [Options.NewEngine], the engine compiled into this build is used, which requires [Initialized].
func New(ctx context.Context, opts Options) (*Reader, error) {
	if !Initialized && opts.NewEngine == nil {
		return nil, fmt.Errorf("%w: no engine available in this build", ErrInitialization)
	}
	if err := opts.applyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	if err := CheckTrainedData(opts.DataPath, opts.Languages); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	engine, err := construct(opts.NewEngine)
	if err != nil {
		return nil, fmt.Errorf("%w: creating engine: %w", ErrInitialization, err)
	}
	if err := initEngine(ctx, engine, opts); err != nil {
		if cerr := engine.Close(); cerr != nil {
			opts.Logger.Warn("Could not release engine after failed init", "err", cerr)
		}
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	opts.Logger.Debug("Tesseract initialized", "languages", opts.Languages, "psm", opts.PageSegMode, "dataPath", opts.DataPath)
	return &Reader{
		opts:   opts,
		engine: engine,
		log:    opts.Logger,
		slot:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

func construct(newEngine func() (Engine, error)) (e Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()
	e, err = newEngine()
	if err == nil && e == nil {
		err = errors.New("engine is nil")
	}
	return e, err
}

func initEngine(ctx context.Context, engine Engine, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()
	if err := engine.Init(ctx, opts.DataPath, opts.Languages); err != nil {
		return err
	}
	return engine.SetPageSegMode(opts.PageSegMode)
}

func (r *Reader) usable() error {
	if r == nil || r.engine == nil {
		return ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrDisposed
	}
	return nil
}

// acquire blocks until the caller has exclusive access to the engine.
func (r *Reader) acquire(ctx context.Context, failFast bool) error {
	if failFast {
		select {
		case r.slot <- struct{}{}:
		case <-r.done:
			return ErrDisposed
		default:
			return ErrBusy
		}
	} else {
		select {
		case r.slot <- struct{}{}:
		case <-r.done:
			return ErrDisposed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// Close might have won the race
	if err := r.usable(); err != nil {
		r.release()
		return err
	}
	return nil
}

func (r *Reader) release() {
	<-r.slot
}

// Recognize loads img (any format Leptonica can read) into the engine and returns the recognized text.
// The error wraps [ErrNoText] if the image contains no text and [ErrRecognition] if the engine failed.
// When ctx is done or the configured timeout expires, the engine is asked to stop and the
// error wraps ctx.Err().
func (r *Reader) Recognize(ctx context.Context, img []byte) (Result, error) {
	if err := r.usable(); err != nil {
		return Result{}, err
	}
	if len(img) == 0 {
		return Result{}, fmt.Errorf("%w: empty image", ErrRecognition)
	}
	if err := r.acquire(ctx, r.opts.FailWhenBusy); err != nil {
		return Result{}, err
	}
	var cancel context.CancelFunc
	if r.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.gen++
	gen := r.gen
	r.hasResult = false
	r.mu.Unlock()

	results := make(chan outcome, 1)
	// the goroutine owns the slot until the engine returns, even if our caller gave up.
	// The slot is free again before the result is handed over.
	go func() {
		res, err := r.run(ctx, img)
		r.mu.Lock()
		r.cancel = nil
		if err == nil && ctx.Err() == nil {
			r.conf = res.Confidence
			r.hasResult = true
		}
		r.mu.Unlock()
		r.release()
		results <- outcome{res, err}
	}()

	select {
	case o := <-results:
		return o.res, o.err
	case <-ctx.Done():
		select {
		case o := <-results:
			return o.res, o.err
		default:
		}
		r.stopEngine(gen)
		r.log.Warn("Recognition aborted", "err", ctx.Err())
		return Result{}, fmt.Errorf("%w: %w", ErrRecognition, ctx.Err())
	}
}

func (r *Reader) run(ctx context.Context, img []byte) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: engine panicked: %v", ErrRecognition, p)
		}
	}()
	r.progress(0)
	if err := r.engine.SetImage(img); err != nil {
		return res, fmt.Errorf("%w: loading image: %w", ErrRecognition, err)
	}
	var text string
	if r.opts.Format == FormatText {
		text, err = r.engine.Text(ctx, r.opts.Progress)
	} else {
		text, err = r.engine.HOCRText(ctx, r.opts.Progress)
	}
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("%w: %w", ErrRecognition, ctx.Err())
		}
		return res, fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	empty, err := isEmpty(text, r.opts.Format)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	if empty {
		r.progress(100)
		return res, ErrNoText
	}
	r.progress(100)
	return Result{Text: text, Confidence: clampConfidence(r.engine.MeanConfidence()), Format: r.opts.Format}, nil
}

func (r *Reader) progress(percent int) {
	if r.opts.Progress != nil {
		r.opts.Progress(percent)
	}
}

func isEmpty(text string, f Format) (bool, error) {
	if f == FormatText {
		return strings.TrimSpace(text) == "", nil
	}
	doc, err := hocr.Parse(strings.NewReader(text))
	if err != nil {
		return false, fmt.Errorf("parsing hOCR: %w", err)
	}
	return strings.TrimSpace(doc.PlainText()) == "", nil
}

func clampConfidence(c int) int {
	return max(0, min(100, c))
}

// stopEngine stops the engine if the recognition gen is still in flight.
// The recognizing goroutine clears cancel under mu before it releases the slot,
// so holding mu here guarantees the engine is not yet working for the next caller.
func (r *Reader) stopEngine(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil || r.gen != gen {
		return
	}
	r.cancel()
	r.engine.Stop()
}

// Stop asks the engine to abort the recognition in flight, if there is one.
// Recognize returns as soon as the engine gives up, which depends on the engine.
func (r *Reader) Stop() error {
	if err := r.usable(); err != nil {
		return err
	}
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	r.stopEngine(gen)
	return nil
}

// Confidence returns the mean confidence (0-100) of the most recent successful recognition.
func (r *Reader) Confidence() (int, error) {
	if err := r.usable(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasResult {
		return 0, ErrNoResult
	}
	return r.conf, nil
}

// Clear frees the loaded image and recognition results. The engine stays initialized.
// It waits for a recognition in flight to finish.
func (r *Reader) Clear() error {
	if err := r.usable(); err != nil {
		return err
	}
	if err := r.acquire(context.Background(), false); err != nil {
		return err
	}
	defer r.release()
	r.engine.Clear()
	r.mu.Lock()
	r.hasResult = false
	r.conf = 0
	r.mu.Unlock()
	return nil
}

// Close stops a recognition in flight, waits for it to return and releases all engine resources.
// The Reader is unusable afterwards.
func (r *Reader) Close() error {
	if r == nil || r.engine == nil {
		return ErrNotInitialized
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrDisposed
	}
	r.closed = true
	gen := r.gen
	r.mu.Unlock()
	close(r.done)
	r.stopEngine(gen)
	// never released: nobody may use the engine after this point
	r.slot <- struct{}{}
	r.log.Debug("Releasing Tesseract engine")
	return r.engine.Close()
}
