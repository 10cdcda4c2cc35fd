// Package hocr parses the hOCR output of Tesseract into a small object model:
// Document → Pages → Areas → Paragraphs → Lines → Words.
package hocr

import (
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

type Document struct {
	Pages []Page
}

type Page struct {
	BBox  image.Rectangle
	Areas []Area
}

type Area struct {
	BBox       image.Rectangle
	Paragraphs []Paragraph
}

type Paragraph struct {
	BBox  image.Rectangle
	Lines []Line
}

type Line struct {
	BBox  image.Rectangle
	Words []Word
}

type Word struct {
	Text string
	BBox image.Rectangle
	// Confidence as reported by x_wconf (0-100)
	Confidence int
}

const (
	classPage = "ocr_page"
	classArea = "ocr_carea"
	classPar  = "ocr_par"
	classWord = "ocrx_word"
)

// Tesseract emits these for text lines depending on layout analysis
var lineClasses = []string{"ocr_line", "ocr_caption", "ocr_header", "ocr_textfloat"}

type cursor struct {
	page *Page
	area *Area
	par  *Paragraph
	line *Line
}

// Parse reads hOCR markup. Elements outside the hierarchy are tolerated:
// a word without an enclosing line is added to the most recent line (or an implicit one) and so forth.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing hOCR markup: %w", err)
	}
	doc := &Document{}
	doc.walk(root, cursor{})
	return doc, nil
}

func (d *Document) walk(n *html.Node, c cursor) {
	if n.Type == html.ElementNode {
		classes := strings.Fields(attr(n, "class"))
		bbox, conf := parseTitle(attr(n, "title"))
		switch {
		case hasClass(classes, classPage):
			d.Pages = append(d.Pages, Page{BBox: bbox})
			c = cursor{page: &d.Pages[len(d.Pages)-1]}
		case hasClass(classes, classArea):
			p := d.ensurePage(&c)
			p.Areas = append(p.Areas, Area{BBox: bbox})
			c.area, c.par, c.line = &p.Areas[len(p.Areas)-1], nil, nil
		case hasClass(classes, classPar):
			a := d.ensureArea(&c)
			a.Paragraphs = append(a.Paragraphs, Paragraph{BBox: bbox})
			c.par, c.line = &a.Paragraphs[len(a.Paragraphs)-1], nil
		case hasAnyClass(classes, lineClasses):
			p := d.ensurePar(&c)
			p.Lines = append(p.Lines, Line{BBox: bbox})
			c.line = &p.Lines[len(p.Lines)-1]
		case hasClass(classes, classWord):
			text := strings.TrimSpace(textContent(n))
			if text != "" {
				l := d.ensureLine(&c)
				l.Words = append(l.Words, Word{Text: text, BBox: bbox, Confidence: conf})
			}
			// words have no structural children
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		d.walk(child, c)
	}
}

func (d *Document) ensurePage(c *cursor) *Page {
	if c.page == nil {
		if len(d.Pages) == 0 {
			d.Pages = append(d.Pages, Page{})
		}
		c.page = &d.Pages[len(d.Pages)-1]
	}
	return c.page
}

func (d *Document) ensureArea(c *cursor) *Area {
	if c.area == nil {
		p := d.ensurePage(c)
		if len(p.Areas) == 0 {
			p.Areas = append(p.Areas, Area{})
		}
		c.area = &p.Areas[len(p.Areas)-1]
	}
	return c.area
}

func (d *Document) ensurePar(c *cursor) *Paragraph {
	if c.par == nil {
		a := d.ensureArea(c)
		if len(a.Paragraphs) == 0 {
			a.Paragraphs = append(a.Paragraphs, Paragraph{})
		}
		c.par = &a.Paragraphs[len(a.Paragraphs)-1]
	}
	return c.par
}

func (d *Document) ensureLine(c *cursor) *Line {
	if c.line == nil {
		p := d.ensurePar(c)
		if len(p.Lines) == 0 {
			p.Lines = append(p.Lines, Line{})
		}
		c.line = &p.Lines[len(p.Lines)-1]
	}
	return c.line
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(classes []string, class string) bool {
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

func hasAnyClass(classes []string, wanted []string) bool {
	for _, w := range wanted {
		if hasClass(classes, w) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// parseTitle extracts bbox and x_wconf from a title attribute like
// "bbox 36 92 580 122; x_wconf 95"
func parseTitle(title string) (bbox image.Rectangle, conf int) {
	for _, prop := range strings.Split(title, ";") {
		fields := strings.Fields(prop)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "bbox":
			if len(fields) != 5 {
				continue
			}
			var coords [4]int
			ok := true
			for i := range coords {
				v, err := strconv.Atoi(fields[i+1])
				if err != nil {
					ok = false
					break
				}
				coords[i] = v
			}
			if ok {
				bbox = image.Rect(coords[0], coords[1], coords[2], coords[3])
			}
		case "x_wconf":
			if len(fields) == 2 {
				if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
					conf = int(math.Round(v))
				}
			}
		}
	}
	return bbox, conf
}

// Words returns all words in reading order.
func (d *Document) Words() []Word {
	var words []Word
	for _, p := range d.Pages {
		for _, a := range p.Areas {
			for _, par := range a.Paragraphs {
				for _, l := range par.Lines {
					words = append(words, l.Words...)
				}
			}
		}
	}
	return words
}

// PlainText renders the document as plain text: one line per text line,
// paragraphs separated by an empty line.
func (d *Document) PlainText() string {
	var paragraphs []string
	for _, p := range d.Pages {
		for _, a := range p.Areas {
			for _, par := range a.Paragraphs {
				if t := par.Text(); t != "" {
					paragraphs = append(paragraphs, t)
				}
			}
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func (p Paragraph) Text() string {
	lines := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		if t := l.Text(); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

func (l Line) Text() string {
	words := make([]string, len(l.Words))
	for i, w := range l.Words {
		words[i] = w.Text
	}
	return strings.Join(words, " ")
}

// MeanConfidence is the average word confidence, 0 if there are no words.
func (d *Document) MeanConfidence() int {
	words := d.Words()
	if len(words) == 0 {
		return 0
	}
	var sum int
	for _, w := range words {
		sum += w.Confidence
	}
	return int(math.Round(float64(sum) / float64(len(words))))
}
