package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
)

func TestDefaults(t *testing.T) {
	cfg, err := NewMrzConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxFileSizeBytes != 20*1024*1024 {
		t.Errorf("got max file size %d", cfg.MaxFileSizeBytes)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("got log level %v", cfg.LogLevel)
	}
	opts := cfg.ReaderOptions(nil)
	if opts.Languages != "eng" || opts.PageSegMode != tesswrap.PSM_SINGLE_BLOCK || opts.Format != tesswrap.FormatHOCR {
		t.Errorf("unexpected reader options %+v", opts)
	}
	if opts.Timeout != 30*time.Second {
		t.Errorf("got timeout %v", opts.Timeout)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MRZ_LOG_LEVEL", "debug")
	t.Setenv("MRZ_MAX_FILE_SIZE", "1MB")
	t.Setenv("MRZ_TESSERACT_LANGS", "eng+deu")
	t.Setenv("MRZ_PSM", "7")
	t.Setenv("MRZ_POOL_SIZE", "4")
	t.Setenv("MRZ_FAIL_WHEN_BUSY", "true")
	t.Setenv("MRZ_OUTPUT_FORMAT", "text")
	t.Setenv("MRZ_DOC_TYPE", "id_card")
	cfg, err := NewMrzConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("got log level %v", cfg.LogLevel)
	}
	if cfg.MaxFileSizeBytes != 1000*1000 {
		t.Errorf("got max file size %d", cfg.MaxFileSizeBytes)
	}
	opts := cfg.ReaderOptions(nil)
	if opts.Languages != "eng+deu" || opts.PageSegMode != tesswrap.PSM_SINGLE_LINE || !opts.FailWhenBusy {
		t.Errorf("unexpected reader options %+v", opts)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("got pool size %d", cfg.PoolSize)
	}
	if cfg.DocType != "ID_CARD" {
		t.Errorf("got doc type %q", cfg.DocType)
	}
	if opts.Format != tesswrap.FormatHOCR {
		t.Errorf("readers must produce hOCR, got %q", opts.Format)
	}
}

func TestInvalid(t *testing.T) {
	var cases = []struct{ key, value string }{
		{"MRZ_LOG_LEVEL", "chatty"},
		{"MRZ_MAX_FILE_SIZE", "huge"},
		{"MRZ_PSM", "14"},
		{"MRZ_POOL_SIZE", "0"},
		{"MRZ_OCR_TIMEOUT", "soon"},
		{"MRZ_OUTPUT_FORMAT", "pdf"},
		{"MRZ_DOC_TYPE", "VISA"},
	}
	for _, c := range cases {
		t.Run(c.key, func(t *testing.T) {
			t.Setenv(c.key, c.value)
			if _, err := NewMrzConfigFromEnv(); err == nil {
				t.Errorf("expected an error for %s=%s", c.key, c.value)
			}
		})
	}
}
