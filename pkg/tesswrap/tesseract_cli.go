//go:build !gosseract && !tesseract_pure && !tesseract_wasm

// This is the default implementation
package tesswrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/johbar/mrz-reader-service/internal/hocr"
)

const tesseractCmd = "tesseract"

func init() {
	path, err := exec.LookPath(tesseractCmd)
	if err != nil {
		Initialized = false
		return
	}
	Version = cliVersion(path)
}

func cliVersion(path string) string {
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return ""
	}
	firstLine, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(strings.TrimPrefix(firstLine, "tesseract"))
}

func newEngine() (Engine, error) {
	path, err := exec.LookPath(tesseractCmd)
	if err != nil {
		return nil, err
	}
	return &cliEngine{path: path}, nil
}

// cliEngine runs one tesseract process per recognition, feeding the image via stdin
// and reading hOCR from stdout.
type cliEngine struct {
	path      string
	dataPath  string
	languages string
	psm       PageSegMode
	img       []byte
	conf      int

	mu     sync.Mutex
	cancel context.CancelFunc
}

// listLangs returns the languages tesseract can find trained data for.
func (e *cliEngine) listLangs(ctx context.Context) ([]string, error) {
	args := []string{"--list-langs"}
	if e.dataPath != "" {
		args = append(args, "--tessdata-dir", e.dataPath)
	}
	output, err := exec.CommandContext(ctx, e.path, args...).Output()
	if err != nil {
		return nil, err
	}
	outputLines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(outputLines) < 2 {
		return []string{}, nil
	}
	// first line is a heading
	langs := make([]string, 0, len(outputLines)-1)
	for _, l := range outputLines[1:] {
		langs = append(langs, strings.TrimSpace(l))
	}
	return langs, nil
}

func (e *cliEngine) Init(ctx context.Context, dataPath, languages string) error {
	e.dataPath = dataPath
	e.languages = languages
	available, err := e.listLangs(ctx)
	if err != nil {
		return fmt.Errorf("listing installed languages: %w", err)
	}
	return checkLangsAvailable(languages, available)
}

func (e *cliEngine) SetPageSegMode(mode PageSegMode) error {
	e.psm = mode
	return nil
}

func (e *cliEngine) SetImage(img []byte) error {
	e.img = img
	e.conf = 0
	return nil
}

func (e *cliEngine) recognize(ctx context.Context, progress ProgressFunc) (*hocr.Document, string, error) {
	if len(e.img) == 0 {
		return nil, "", errors.New("no image set")
	}
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

	args := []string{"-", "-", "-l", e.languages, "--psm", strconv.Itoa(int(e.psm))}
	if e.dataPath != "" {
		args = append(args, "--tessdata-dir", e.dataPath)
	}
	args = append(args, "hocr")
	cmd := exec.CommandContext(ctx, e.path, args...)
	cmd.Stdin = bytes.NewReader(e.img)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, "", fmt.Errorf("%w: %s", err, msg)
		}
		return nil, "", err
	}
	doc, err := hocr.Parse(bytes.NewReader(out))
	if err != nil {
		return nil, "", err
	}
	e.conf = doc.MeanConfidence()
	if progress != nil {
		progress(100)
	}
	return doc, string(out), nil
}

func (e *cliEngine) HOCRText(ctx context.Context, progress ProgressFunc) (string, error) {
	_, out, err := e.recognize(ctx, progress)
	return out, err
}

func (e *cliEngine) Text(ctx context.Context, progress ProgressFunc) (string, error) {
	doc, _, err := e.recognize(ctx, progress)
	if err != nil {
		return "", err
	}
	return doc.PlainText(), nil
}

func (e *cliEngine) MeanConfidence() int {
	return e.conf
}

// Stop kills the running tesseract process
func (e *cliEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *cliEngine) Clear() {
	e.img = nil
	e.conf = 0
}

func (e *cliEngine) Close() error {
	e.Stop()
	e.Clear()
	return nil
}
