//go:build tesseract_pure

package tesswrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

var (
	tessVersion       func() *byte
	tessBaseAPICreate func() uintptr
	tessBaseAPIDelete func(handle uintptr)
	tessBaseAPIInit3  func(handle uintptr, datapath *byte, lang *byte) int32
	/*
		Close down tesseract and free up all memory. End() is equivalent to destructing and reconstructing
		your TessBaseAPI. Once End() has been used, none of the other API functions may be used other than Init.
	*/
	tessBaseAPIEnd            func(handle uintptr)
	tessBaseAPISetImage2      func(handle uintptr, pix uintptr)
	tessBaseAPIRecognize      func(handle uintptr, monitor uintptr) int32
	tessBaseAPIGetHOCRText    func(handle uintptr, page int32) *byte
	tessBaseAPIGetUTF8Text    func(handle uintptr) *byte
	tessBaseAPIMeanTextConf   func(handle uintptr) int32
	tessBaseAPISetPageSegMode func(handle uintptr, mode uint32)
	/*
		Free up recognition results and any stored image data,
		without actually freeing any recognition data that would be time-consuming to reload.
		Afterwards, you must call SetImage or TesseractRect before doing any Recognize or Get* operation.
	*/
	tessBaseAPIClear           func(handle uintptr)
	tessDeleteText             func(text *byte)
	tessMonitorCreate          func() uintptr
	tessMonitorDelete          func(monitor uintptr)
	tessMonitorSetDeadlineMSec func(monitor uintptr, msecs int32)
	tessMonitorGetProgress     func(monitor uintptr) int32

	pixReadMem func(data *byte, length uint64) uintptr
	pixDestroy func(pix *uintptr)

	libOnce sync.Once
	libErr  error
)

func init() {
	if err := loadLib(); err != nil {
		Initialized = false
		return
	}
	Version = unix.BytePtrToString(tessVersion())
	Initialized = true
}

func loadLib() error {
	libOnce.Do(func() {
		lib, err := purego.Dlopen("libtesseract.so", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			libErr = err
			return
		}
		purego.RegisterLibFunc(&tessVersion, lib, "TessVersion")
		purego.RegisterLibFunc(&tessBaseAPICreate, lib, "TessBaseAPICreate")
		purego.RegisterLibFunc(&tessBaseAPIDelete, lib, "TessBaseAPIDelete")
		purego.RegisterLibFunc(&tessBaseAPIInit3, lib, "TessBaseAPIInit3")
		purego.RegisterLibFunc(&tessBaseAPIEnd, lib, "TessBaseAPIEnd")
		purego.RegisterLibFunc(&tessBaseAPISetImage2, lib, "TessBaseAPISetImage2")
		purego.RegisterLibFunc(&tessBaseAPIRecognize, lib, "TessBaseAPIRecognize")
		purego.RegisterLibFunc(&tessBaseAPIGetHOCRText, lib, "TessBaseAPIGetHOCRText")
		purego.RegisterLibFunc(&tessBaseAPIGetUTF8Text, lib, "TessBaseAPIGetUTF8Text")
		purego.RegisterLibFunc(&tessBaseAPIMeanTextConf, lib, "TessBaseAPIMeanTextConf")
		purego.RegisterLibFunc(&tessBaseAPISetPageSegMode, lib, "TessBaseAPISetPageSegMode")
		purego.RegisterLibFunc(&tessBaseAPIClear, lib, "TessBaseAPIClear")
		purego.RegisterLibFunc(&tessDeleteText, lib, "TessDeleteText")
		purego.RegisterLibFunc(&tessMonitorCreate, lib, "TessMonitorCreate")
		purego.RegisterLibFunc(&tessMonitorDelete, lib, "TessMonitorDelete")
		purego.RegisterLibFunc(&tessMonitorSetDeadlineMSec, lib, "TessMonitorSetDeadlineMSecs")
		purego.RegisterLibFunc(&tessMonitorGetProgress, lib, "TessMonitorGetProgress")
		// Leptonica is a dependency of libtesseract, so dlsym finds its symbols via the same handle
		purego.RegisterLibFunc(&pixReadMem, lib, "pixReadMem")
		purego.RegisterLibFunc(&pixDestroy, lib, "pixDestroy")
	})
	return libErr
}

func newEngine() (Engine, error) {
	if err := loadLib(); err != nil {
		return nil, err
	}
	handle := tessBaseAPICreate()
	if handle == 0 {
		return nil, errors.New("TessBaseAPICreate returned NULL")
	}
	return &pureEngine{handle: handle}, nil
}

// pureEngine talks to libtesseract's C API without cgo.
type pureEngine struct {
	handle uintptr
	pix    uintptr

	mu      sync.Mutex
	monitor uintptr
}

func (e *pureEngine) Init(_ context.Context, dataPath, languages string) error {
	var path *byte
	if dataPath != "" {
		p, err := unix.BytePtrFromString(dataPath)
		if err != nil {
			return err
		}
		path = p
	}
	lang, err := unix.BytePtrFromString(languages)
	if err != nil {
		return err
	}
	if ret := tessBaseAPIInit3(e.handle, path, lang); ret != 0 {
		return fmt.Errorf("TessBaseAPIInit3 returned %d", ret)
	}
	return nil
}

func (e *pureEngine) SetPageSegMode(mode PageSegMode) error {
	tessBaseAPISetPageSegMode(e.handle, uint32(mode))
	return nil
}

func (e *pureEngine) SetImage(img []byte) error {
	e.freePix()
	pix := pixReadMem(&img[0], uint64(len(img)))
	if pix == 0 {
		return errors.New("not an image")
	}
	e.pix = pix
	tessBaseAPISetImage2(e.handle, pix)
	return nil
}

func (e *pureEngine) freePix() {
	if e.pix != 0 {
		pixDestroy(&e.pix)
		e.pix = 0
	}
}

// recognize runs the recognition with a progress monitor which is also used to stop it.
func (e *pureEngine) recognize(ctx context.Context, progress ProgressFunc) error {
	if e.pix == 0 {
		return errors.New("no image set")
	}
	monitor := tessMonitorCreate()
	e.mu.Lock()
	e.monitor = monitor
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.monitor = 0
		e.mu.Unlock()
		tessMonitorDelete(monitor)
	}()
	if deadline, ok := ctx.Deadline(); ok {
		tessMonitorSetDeadlineMSec(monitor, int32(max(1, time.Until(deadline).Milliseconds())))
	}

	finished := make(chan struct{})
	var polling sync.WaitGroup
	polling.Add(1)
	go func() {
		defer polling.Done()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-finished:
				return
			case <-ctx.Done():
				e.Stop()
				return
			case <-ticker.C:
				if progress != nil {
					progress(int(tessMonitorGetProgress(monitor)))
				}
			}
		}
	}()
	ret := tessBaseAPIRecognize(e.handle, monitor)
	close(finished)
	polling.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if ret != 0 {
		return fmt.Errorf("TessBaseAPIRecognize returned %d", ret)
	}
	return nil
}

func (e *pureEngine) HOCRText(ctx context.Context, progress ProgressFunc) (string, error) {
	if err := e.recognize(ctx, progress); err != nil {
		return "", err
	}
	text := tessBaseAPIGetHOCRText(e.handle, 0)
	if text == nil {
		return "", errors.New("TessBaseAPIGetHOCRText returned NULL")
	}
	defer tessDeleteText(text)
	return unix.BytePtrToString(text), nil
}

func (e *pureEngine) Text(ctx context.Context, progress ProgressFunc) (string, error) {
	if err := e.recognize(ctx, progress); err != nil {
		return "", err
	}
	text := tessBaseAPIGetUTF8Text(e.handle)
	if text == nil {
		return "", errors.New("TessBaseAPIGetUTF8Text returned NULL")
	}
	defer tessDeleteText(text)
	return unix.BytePtrToString(text), nil
}

func (e *pureEngine) MeanConfidence() int {
	return int(tessBaseAPIMeanTextConf(e.handle))
}

// Stop moves the monitor's deadline to now. Tesseract checks it between words.
func (e *pureEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitor != 0 {
		tessMonitorSetDeadlineMSec(e.monitor, 1)
	}
}

func (e *pureEngine) Clear() {
	tessBaseAPIClear(e.handle)
	e.freePix()
}

func (e *pureEngine) Close() error {
	if e.handle == 0 {
		return nil
	}
	e.Clear()
	tessBaseAPIEnd(e.handle)
	tessBaseAPIDelete(e.handle)
	e.handle = 0
	return nil
}
