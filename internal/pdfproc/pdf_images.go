// Package pdfproc implements a limited set of operations to process PDFs, i.e. scanned documents
package pdfproc

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Image is an image embedded in a PDF
type Image struct {
	// Page number, starting at 1
	Page     int
	Name     string
	FileType string
	Data     []byte
}

var pdfConf *model.Configuration

func init() {
	pdfConf = model.NewDefaultConfiguration()
}

// ExtractImages returns the images of the given pages (0-based) in page order.
// Without pageIndexes, the images of all pages are returned.
func ExtractImages(rs io.ReadSeeker, pageIndexes ...int) ([]Image, error) {
	var pages []string
	for _, i := range pageIndexes {
		pages = append(pages, strconv.Itoa(i+1))
	}
	var images []Image
	err := pdfcpuapi.ExtractImages(rs, pages, func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("reading image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		images = append(images, Image{Page: img.PageNr, Name: img.Name, FileType: img.FileType, Data: data})
		return nil
	}, pdfConf)
	if err != nil {
		return nil, err
	}
	return images, nil
}

// PageCount returns the number of pages of the PDF in data.
func PageCount(data []byte) (int, error) {
	info, err := pdfcpuapi.PDFInfo(bytes.NewReader(data), "", nil, nil)
	if err != nil {
		return 0, err
	}
	return info.PageCount, nil
}
