// Package server exposes OCR and MRZ reading via HTTP, NATS and the command line.
package server

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/johbar/mrz-reader-service/internal/cache"
	"github.com/johbar/mrz-reader-service/internal/config"
	"github.com/johbar/mrz-reader-service/internal/hocr"
	"github.com/johbar/mrz-reader-service/internal/pdfproc"
	"github.com/johbar/mrz-reader-service/internal/preprocess"
	"github.com/johbar/mrz-reader-service/internal/readerpool"
	"github.com/johbar/mrz-reader-service/pkg/dehyphenator"
	"github.com/johbar/mrz-reader-service/pkg/mrz"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrNoImages         = errors.New("no images found in PDF")
)

var (
	recognitions = expvar.NewInt("recognitions")
	cacheHits    = expvar.NewInt("cacheHits")
	mrzFound     = expvar.NewInt("mrzFound")
)

// Service recognizes text in images and PDFs using a pool of readers.
type Service struct {
	pool     *readerpool.Pool
	cache    cache.Cache
	conf     *config.MrzConfig
	log      *slog.Logger
	validate *validator.Validate
	cacheNop bool
}

// New creates a Service. The readers in pool have to produce hOCR, the plain text is derived from it.
func New(conf *config.MrzConfig, pool *readerpool.Pool, c cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if c == nil {
		c = &cache.NopCache{}
	}
	s := &Service{
		pool:     pool,
		cache:    c,
		conf:     conf,
		log:      logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	_, s.cacheNop = c.(*cache.NopCache)
	return s
}

// OCR recognizes the text in data, which is either an image or a PDF.
// For PDFs, the images of all pages are recognized and the plain text of every image is returned,
// separated by blank lines. The confidence is the mean of all images.
func (s *Service) OCR(ctx context.Context, data []byte, format tesswrap.Format) (tesswrap.Result, error) {
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/pdf"):
		return s.ocrPdf(ctx, data)
	case strings.HasPrefix(mtype.String(), "image/"):
		res, err := s.recognizeImage(ctx, data)
		if err != nil {
			return res, err
		}
		res, err = convert(res, format)
		if err != nil {
			return res, err
		}
		if res.Format == tesswrap.FormatText {
			res.Text = s.dehyphenate(res.Text)
		}
		return res, nil
	default:
		return tesswrap.Result{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}
}

func (s *Service) ocrPdf(ctx context.Context, data []byte) (tesswrap.Result, error) {
	images, err := pdfproc.ExtractImages(bytes.NewReader(data))
	if err != nil {
		return tesswrap.Result{}, fmt.Errorf("%w: %w", ErrUnsupportedMedia, err)
	}
	if len(images) == 0 {
		return tesswrap.Result{}, ErrNoImages
	}
	s.log.Debug("Images found in PDF. Starting OCR", "count", len(images))
	imgs := make([][]byte, len(images))
	for i, img := range images {
		imgs[i] = img.Data
	}
	results, errs := s.recognizeAll(ctx, imgs)
	var texts []string
	var confSum int
	var lastErr error
	for i, res := range results {
		if errs[i] != nil {
			s.log.Warn("OCR of PDF image failed", "page", images[i].Page, "name", images[i].Name, "err", errs[i])
			lastErr = errs[i]
			continue
		}
		plain, err := convert(res, tesswrap.FormatText)
		if err != nil {
			lastErr = err
			continue
		}
		texts = append(texts, s.dehyphenate(plain.Text))
		confSum += plain.Confidence
	}
	if len(texts) == 0 {
		return tesswrap.Result{}, lastErr
	}
	return tesswrap.Result{
		Text:       strings.Join(texts, "\n\n"),
		Confidence: confSum / len(texts),
		Format:     tesswrap.FormatText,
	}, nil
}

// ReadMRZ recognizes data and searches the text for a machine readable zone of docType.
// For PDFs, every image is searched until a valid zone is found.
func (s *Service) ReadMRZ(ctx context.Context, data []byte, docType mrz.DocType) (*mrz.Info, int, error) {
	mtype := mimetype.Detect(data)
	var imgs [][]byte
	switch {
	case mtype.Is("application/pdf"):
		images, err := pdfproc.ExtractImages(bytes.NewReader(data))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrUnsupportedMedia, err)
		}
		if len(images) == 0 {
			return nil, 0, ErrNoImages
		}
		for _, img := range images {
			imgs = append(imgs, img.Data)
		}
	case strings.HasPrefix(mtype.String(), "image/"):
		imgs = [][]byte{data}
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}
	results, errs := s.recognizeAll(ctx, imgs)
	var lastErr error
	for i, res := range results {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		plain, err := convert(res, tesswrap.FormatText)
		if err != nil {
			lastErr = err
			continue
		}
		info, err := mrz.Parse(plain.Text, docType)
		if err != nil {
			s.log.Debug("No valid MRZ in recognized text", "err", err, "text", plain.Text)
			lastErr = err
			continue
		}
		mrzFound.Add(1)
		return info, plain.Confidence, nil
	}
	return nil, 0, lastErr
}

func (s *Service) recognizeAll(ctx context.Context, imgs [][]byte) ([]tesswrap.Result, []error) {
	if len(imgs) == 1 {
		res, err := s.recognizeImage(ctx, imgs[0])
		return []tesswrap.Result{res}, []error{err}
	}
	results := make([]tesswrap.Result, len(imgs))
	errs := make([]error, len(imgs))
	var misses [][]byte
	var missIdx []int
	for i, img := range imgs {
		if e := s.cached(img); e != nil {
			results[i] = e.result()
			continue
		}
		misses = append(misses, s.prepare(img))
		missIdx = append(missIdx, i)
	}
	recognized, recErrs := s.pool.RecognizeAll(ctx, misses)
	for j, i := range missIdx {
		results[i], errs[i] = recognized[j], recErrs[j]
		if recErrs[j] == nil {
			recognitions.Add(1)
			s.save(imgs[i], recognized[j])
		}
	}
	return results, errs
}

// recognizeImage returns the hOCR of a single image, served from the cache if possible.
func (s *Service) recognizeImage(ctx context.Context, img []byte) (tesswrap.Result, error) {
	if e := s.cached(img); e != nil {
		return e.result(), nil
	}
	res, err := s.pool.Recognize(ctx, s.prepare(img))
	if err != nil {
		return res, err
	}
	recognitions.Add(1)
	s.save(img, res)
	return res, nil
}

// prepare runs the image preprocessing if enabled. Images it cannot decode are passed to Tesseract as they are.
func (s *Service) prepare(img []byte) []byte {
	if !s.conf.Preprocess {
		return img
	}
	out, err := preprocess.Process(img, preprocess.DefaultOptions)
	if err != nil {
		s.log.Warn("Preprocessing failed, using the original image", "err", err)
		return img
	}
	return out
}

func (s *Service) cacheKey(img []byte) string {
	return cache.Key(img, s.conf.TesseractLangs, strconv.Itoa(s.conf.PageSegMode), strconv.FormatBool(s.conf.Preprocess))
}

type cachedEntry struct{ cache.Entry }

func (e cachedEntry) result() tesswrap.Result {
	return tesswrap.Result{Text: e.Text, Confidence: e.Confidence, Format: tesswrap.Format(e.Format)}
}

func (s *Service) cached(img []byte) *cachedEntry {
	if s.cacheNop {
		return nil
	}
	key := s.cacheKey(img)
	e, err := s.cache.Get(key)
	if err != nil {
		s.log.Error("Could not get recognition result from cache", "key", key, "err", err)
		return nil
	}
	if e == nil {
		return nil
	}
	cacheHits.Add(1)
	s.log.Debug("Serving recognition result from cache", "key", key)
	return &cachedEntry{*e}
}

func (s *Service) save(img []byte, res tesswrap.Result) {
	if s.cacheNop {
		return
	}
	key := s.cacheKey(img)
	e := cache.Entry{Text: res.Text, Confidence: res.Confidence, Format: string(res.Format), Languages: s.conf.TesseractLangs}
	if err := s.cache.Save(key, e); err != nil {
		s.log.Warn("Could not save recognition result to cache", "key", key, "err", err)
	}
}

func (s *Service) dehyphenate(text string) string {
	if !s.conf.Dehyphenate {
		return text
	}
	return dehyphenator.Dehyphenate(text)
}

// convert turns a hOCR result into the requested format.
func convert(res tesswrap.Result, format tesswrap.Format) (tesswrap.Result, error) {
	if format == "" || res.Format == format {
		return res, nil
	}
	if res.Format != tesswrap.FormatHOCR || format != tesswrap.FormatText {
		return res, fmt.Errorf("cannot convert %s to %s", res.Format, format)
	}
	doc, err := hocr.Parse(strings.NewReader(res.Text))
	if err != nil {
		return res, fmt.Errorf("%w: parsing hOCR: %w", tesswrap.ErrRecognition, err)
	}
	return tesswrap.Result{Text: doc.PlainText(), Confidence: res.Confidence, Format: tesswrap.FormatText}, nil
}
