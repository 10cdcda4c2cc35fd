package hocr

import (
	"image"
	"strings"
	"testing"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN"
    "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="en" lang="en">
 <head>
  <title></title>
  <meta http-equiv="Content-Type" content="text/html;charset=utf-8"/>
  <meta name='ocr-system' content='tesseract 5.3.0' />
 </head>
 <body>
  <div class='ocr_page' id='page_1' title='image "unknown"; bbox 0 0 640 480; ppageno 0'>
   <div class='ocr_carea' id='block_1_1' title="bbox 36 92 580 180">
    <p class='ocr_par' id='par_1_1' lang='eng' title="bbox 36 92 580 180">
     <span class='ocr_line' id='line_1_1' title="bbox 36 92 580 122; baseline 0 -6; x_size 30">
      <span class='ocrx_word' id='word_1_1' title='bbox 36 92 96 122; x_wconf 96'>Hello</span>
      <span class='ocrx_word' id='word_1_2' title='bbox 109 92 200 122; x_wconf 90'><strong>World</strong></span>
     </span>
     <span class='ocr_caption' id='line_1_2' title="bbox 36 150 580 180">
      <span class='ocrx_word' id='word_1_3' title='bbox 36 150 96 180; x_wconf 81'>again</span>
      <span class='ocrx_word' id='word_1_4' title='bbox 100 150 120 180; x_wconf 0'> </span>
     </span>
    </p>
   </div>
   <div class='ocr_carea' id='block_1_2' title="bbox 36 300 580 330">
    <p class='ocr_par' id='par_1_2' lang='eng' title="bbox 36 300 580 330">
     <span class='ocr_line' id='line_1_3' title="bbox 36 300 580 330">
      <span class='ocrx_word' id='word_1_5' title='bbox 36 300 96 330; x_wconf 77'>Bye</span>
     </span>
    </p>
   </div>
  </div>
 </body>
</html>`

func TestParse(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(doc.Pages))
	}
	page := doc.Pages[0]
	if page.BBox != image.Rect(0, 0, 640, 480) {
		t.Errorf("unexpected page bbox %v", page.BBox)
	}
	if len(page.Areas) != 2 {
		t.Fatalf("got %d areas, want 2", len(page.Areas))
	}
	words := doc.Words()
	if len(words) != 4 {
		t.Fatalf("got %d words, want 4: %v", len(words), words)
	}
	if words[1].Text != "World" || words[1].Confidence != 90 {
		t.Errorf("unexpected second word %+v", words[1])
	}
	if words[0].BBox != image.Rect(36, 92, 96, 122) {
		t.Errorf("unexpected bbox %v", words[0].BBox)
	}
}

func TestPlainText(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello World\nagain\n\nBye"
	if got := doc.PlainText(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMeanConfidence(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	// (96+90+81+77)/4 = 86
	if got := doc.MeanConfidence(); got != 86 {
		t.Errorf("got %d, want 86", got)
	}
}

func TestEmptyPage(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<div class='ocr_page' id='page_1' title='bbox 0 0 10 10'></div>`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.PlainText() != "" {
		t.Errorf("expected no text, got %q", doc.PlainText())
	}
	if doc.MeanConfidence() != 0 {
		t.Errorf("expected zero confidence, got %d", doc.MeanConfidence())
	}
}

func TestWordsWithoutHierarchy(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<span class='ocrx_word' title='x_wconf 50'>lonely</span><span class='ocrx_word' title='x_wconf 70'>word</span>`))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.PlainText(); got != "lonely word" {
		t.Errorf("got %q", got)
	}
	if got := doc.MeanConfidence(); got != 60 {
		t.Errorf("got %d, want 60", got)
	}
}

func TestParseTitle(t *testing.T) {
	var cases = []struct {
		title string
		bbox  image.Rectangle
		conf  int
	}{
		{"bbox 1 2 3 4; x_wconf 95", image.Rect(1, 2, 3, 4), 95},
		{"x_wconf 12.6", image.Rectangle{}, 13},
		{"bbox 1 2 x 4", image.Rectangle{}, 0},
		{"", image.Rectangle{}, 0},
	}
	for _, c := range cases {
		bbox, conf := parseTitle(c.title)
		if bbox != c.bbox || conf != c.conf {
			t.Errorf("parseTitle(%q) = %v, %d; want %v, %d", c.title, bbox, conf, c.bbox, c.conf)
		}
	}
}
