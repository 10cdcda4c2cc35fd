package pdfproc

import (
	"bytes"
	"testing"
)

func TestNotAPdf(t *testing.T) {
	data := []byte("GIF89a definitely not a PDF")
	if _, err := ExtractImages(bytes.NewReader(data)); err == nil {
		t.Error("ExtractImages: expected an error")
	}
	if _, err := PageCount(data); err == nil {
		t.Error("PageCount: expected an error")
	}
}
