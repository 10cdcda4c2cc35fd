// Package readerpool hands out a fixed set of [tesswrap.Reader]s, so that several recognitions run in parallel.
package readerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
	"github.com/panjf2000/ants/v2"
)

var ErrClosed = errors.New("reader pool closed")

type Pool struct {
	readers chan *tesswrap.Reader
	all     []*tesswrap.Reader
	workers *ants.Pool
	log     *slog.Logger

	// fail instead of waiting when every reader is busy
	failFast bool

	closeOnce sync.Once
	done      chan struct{}
}

// New creates size readers with the given options. If one of them fails to initialize,
// the ones already created are closed again.
func New(ctx context.Context, size int, opts tesswrap.Options) (*Pool, error) {
	if size <= 0 {
		return nil, errors.New("pool size must be greater than 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pool{
		readers:  make(chan *tesswrap.Reader, size),
		all:      make([]*tesswrap.Reader, 0, size),
		log:      logger,
		done:     make(chan struct{}),
		failFast: opts.FailWhenBusy,
	}
	for i := range size {
		r, err := tesswrap.New(ctx, opts)
		if err != nil {
			p.closeReaders()
			return nil, fmt.Errorf("creating reader %d of %d: %w", i+1, size, err)
		}
		p.all = append(p.all, r)
		p.readers <- r
	}
	workers, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logger.Error("Recognition worker panicked", "panic", v)
	}))
	if err != nil {
		p.closeReaders()
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	p.workers = workers
	logger.Info("Reader pool ready", "size", size, "languages", opts.Languages)
	return p, nil
}

// Size returns the number of readers in the pool
func (p *Pool) Size() int {
	return cap(p.readers)
}

// Idle reports the number of readers ready to use.
func (p *Pool) Idle() int {
	return len(p.readers)
}

// Do waits for an idle reader and calls fn with it. The reader must not be used after fn returns.
// If the readers were created with [tesswrap.Options.FailWhenBusy], Do does not wait
// but returns [tesswrap.ErrBusy] when no reader is idle.
func (p *Pool) Do(ctx context.Context, fn func(*tesswrap.Reader) error) error {
	return p.do(ctx, !p.failFast, fn)
}

func (p *Pool) do(ctx context.Context, wait bool, fn func(*tesswrap.Reader) error) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	r, err := p.take(ctx, wait)
	if err != nil {
		return err
	}
	defer func() { p.readers <- r }()
	return fn(r)
}

func (p *Pool) take(ctx context.Context, wait bool) (*tesswrap.Reader, error) {
	if !wait {
		select {
		case r := <-p.readers:
			return r, nil
		case <-p.done:
			return nil, ErrClosed
		default:
			return nil, tesswrap.ErrBusy
		}
	}
	select {
	case r := <-p.readers:
		return r, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Recognize runs a single recognition on the next idle reader.
func (p *Pool) Recognize(ctx context.Context, img []byte) (tesswrap.Result, error) {
	return p.recognize(ctx, img, !p.failFast)
}

func (p *Pool) recognize(ctx context.Context, img []byte, wait bool) (tesswrap.Result, error) {
	var res tesswrap.Result
	err := p.do(ctx, wait, func(r *tesswrap.Reader) error {
		var err error
		res, err = r.Recognize(ctx, img)
		return err
	})
	return res, err
}

// RecognizeAll recognizes every image in parallel, using as many readers as there are in the pool.
// The results and errors are in the order of imgs. A pool that fails when busy only does so
// if no reader is idle at the start; the images then wait for each other.
func (p *Pool) RecognizeAll(ctx context.Context, imgs [][]byte) ([]tesswrap.Result, []error) {
	results := make([]tesswrap.Result, len(imgs))
	errs := make([]error, len(imgs))
	if p.failFast && p.Idle() == 0 {
		for i := range errs {
			errs[i] = tesswrap.ErrBusy
		}
		return results, errs
	}
	var wg sync.WaitGroup
	for i, img := range imgs {
		wg.Add(1)
		err := p.workers.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = p.recognize(ctx, img, true)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrClosed
			}
			errs[i] = err
		}
	}
	wg.Wait()
	return results, errs
}

// Close releases all readers. Recognitions in flight are stopped.
func (p *Pool) Close() error {
	err := ErrClosed
	p.closeOnce.Do(func() {
		close(p.done)
		if p.workers != nil {
			p.workers.Release()
		}
		err = p.closeReaders()
	})
	return err
}

func (p *Pool) closeReaders() error {
	var errs []error
	for _, r := range p.all {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.log.Debug("Reader pool closed", "readers", len(p.all))
	return errors.Join(errs...)
}
