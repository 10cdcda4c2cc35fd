package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/johbar/mrz-reader-service/pkg/mrz"
)

func writeFiles(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPrintResultText(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string][]byte{"letter.png": f.letter})
	conf := testConfig(t)
	conf.OutputFormat = "text"
	s := newTestService(t, conf, f.pages, nil)

	var out bytes.Buffer
	if err := s.PrintResult(context.Background(), &out, []string{filepath.Join(dir, "letter.png")}); err != nil {
		t.Fatal(err)
	}
	sc := bufio.NewScanner(&out)
	if !sc.Scan() {
		t.Fatal("no output")
	}
	var meta ocrMetadata
	if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Confidence != 91 || meta.Format != "text" {
		t.Errorf("got metadata %+v", meta)
	}
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 || lines[0] != "Dear Sir" || lines[1] != "kind regards" {
		t.Errorf("got text %q", lines)
	}
}

func TestPrintResultMissingFile(t *testing.T) {
	f := newFixture(t)
	s := newTestService(t, testConfig(t), f.pages, nil)
	err := s.PrintResult(context.Background(), &bytes.Buffer{}, []string{filepath.Join(t.TempDir(), "missing.png")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want ErrNotExist", err)
	}
}

func TestPrintResultMrz(t *testing.T) {
	f := newFixture(t)
	dir := writeFiles(t, map[string][]byte{
		"frame1.png": f.passport,
		"frame2.png": f.blank,
		"frame3.png": f.passport,
	})
	frames := []string{
		filepath.Join(dir, "frame1.png"),
		filepath.Join(dir, "frame2.png"),
		filepath.Join(dir, "frame3.png"),
	}
	conf := testConfig(t)
	conf.DocType = string(mrz.Passport)
	conf.TrackerMinCount = 2
	s := newTestService(t, conf, f.pages, nil)

	var out bytes.Buffer
	if err := s.PrintResult(context.Background(), &out, frames); err != nil {
		t.Fatal(err)
	}
	var resp MrzResponse
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mrz == nil || resp.Mrz.DocumentNumber != "L898902C3" {
		t.Errorf("got %s", out.Bytes())
	}

	// a single sighting is not enough
	err := s.PrintResult(context.Background(), &bytes.Buffer{}, frames[:2])
	if !errors.Is(err, mrz.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
