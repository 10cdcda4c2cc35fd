package readerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap/tesswraptest"
)

var pages = map[string]tesswraptest.Page{
	"one":   {Lines: []string{"ONE"}, Confidence: 90},
	"two":   {Lines: []string{"TWO"}, Confidence: 80},
	"three": {Lines: []string{"THREE"}, Confidence: 70},
	"blank": {},
}

func newPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := New(context.Background(), size, tesswrap.Options{
		Format:    tesswrap.FormatText,
		NewEngine: tesswraptest.NewFactory(pages),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewInvalidSize(t *testing.T) {
	if _, err := New(context.Background(), 0, tesswrap.Options{}); err == nil {
		t.Error("expected an error for size 0")
	}
}

func TestNewClosesReadersOnFailure(t *testing.T) {
	var engines []*tesswraptest.Engine
	factory := func() (tesswrap.Engine, error) {
		e := tesswraptest.New(pages)
		if len(engines) == 2 {
			e.InitErr = errors.New("out of memory")
		}
		engines = append(engines, e)
		return e, nil
	}
	_, err := New(context.Background(), 3, tesswrap.Options{NewEngine: factory})
	if !errors.Is(err, tesswrap.ErrInitialization) {
		t.Fatalf("got %v, want ErrInitialization", err)
	}
	for i, e := range engines {
		if !e.Closed() {
			t.Errorf("engine %d was not closed", i)
		}
	}
}

func TestRecognize(t *testing.T) {
	p := newPool(t, 2)
	defer p.Close()
	if p.Size() != 2 || p.Idle() != 2 {
		t.Errorf("got size %d, idle %d", p.Size(), p.Idle())
	}
	res, err := p.Recognize(context.Background(), []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "ONE" || res.Confidence != 90 {
		t.Errorf("unexpected result %+v", res)
	}
	if p.Idle() != 2 {
		t.Errorf("reader was not returned to the pool")
	}
}

func TestRecognizeAll(t *testing.T) {
	p := newPool(t, 2)
	defer p.Close()
	imgs := [][]byte{[]byte("one"), []byte("two"), []byte("blank"), []byte("three")}
	results, errs := p.RecognizeAll(context.Background(), imgs)
	want := []string{"ONE", "TWO", "", "THREE"}
	for i := range imgs {
		if results[i].Text != want[i] {
			t.Errorf("image %d: got %q, want %q", i, results[i].Text, want[i])
		}
	}
	if !errors.Is(errs[2], tesswrap.ErrNoText) {
		t.Errorf("got %v, want ErrNoText", errs[2])
	}
	for _, i := range []int{0, 1, 3} {
		if errs[i] != nil {
			t.Errorf("image %d: %v", i, errs[i])
		}
	}
}

func TestDoWaitsForIdleReader(t *testing.T) {
	p := newPool(t, 1)
	defer p.Close()
	release := make(chan struct{})
	busy := make(chan struct{})
	go p.Do(context.Background(), func(*tesswrap.Reader) error {
		close(busy)
		<-release
		return nil
	})
	<-busy
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(*tesswrap.Reader) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
	close(release)
	if err := p.Do(context.Background(), func(*tesswrap.Reader) error { return nil }); err != nil {
		t.Error(err)
	}
}

func TestClose(t *testing.T) {
	p := newPool(t, 2)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Recognize(context.Background(), []byte("one")); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	_, errs := p.RecognizeAll(context.Background(), [][]byte{[]byte("one")})
	if !errors.Is(errs[0], ErrClosed) {
		t.Errorf("got %v, want ErrClosed", errs[0])
	}
	if err := p.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close: got %v, want ErrClosed", err)
	}
}

func TestFailWhenBusy(t *testing.T) {
	eng := tesswraptest.New(pages)
	eng.Block = make(chan struct{})
	eng.Entered = make(chan struct{}, 2)
	p, err := New(context.Background(), 1, tesswrap.Options{
		Format:       tesswrap.FormatText,
		FailWhenBusy: true,
		NewEngine:    eng.Factory(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	first := make(chan error, 1)
	go func() {
		_, err := p.Recognize(context.Background(), []byte("one"))
		first <- err
	}()
	<-eng.Entered

	start := time.Now()
	if _, err := p.Recognize(context.Background(), []byte("two")); !errors.Is(err, tesswrap.ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("busy pool made the caller wait %v", d)
	}
	close(eng.Block)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	if _, err := p.Recognize(context.Background(), []byte("two")); err != nil {
		t.Errorf("idle pool: %v", err)
	}
}

func TestRecognizeAllWhenFailingFast(t *testing.T) {
	eng := tesswraptest.New(pages)
	p, err := New(context.Background(), 1, tesswrap.Options{
		Format:       tesswrap.FormatText,
		FailWhenBusy: true,
		NewEngine:    eng.Factory(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	// more images than readers: they queue behind each other
	_, errs := p.RecognizeAll(context.Background(), [][]byte{[]byte("one"), []byte("two"), []byte("one")})
	for i, err := range errs {
		if err != nil {
			t.Errorf("image %d: %v", i, err)
		}
	}

	eng.Block = make(chan struct{})
	eng.Entered = make(chan struct{}, 1)
	first := make(chan error, 1)
	go func() {
		_, err := p.Recognize(context.Background(), []byte("one"))
		first <- err
	}()
	<-eng.Entered
	_, errs = p.RecognizeAll(context.Background(), [][]byte{[]byte("two")})
	if !errors.Is(errs[0], tesswrap.ErrBusy) {
		t.Errorf("got %v, want ErrBusy", errs[0])
	}
	close(eng.Block)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
}
