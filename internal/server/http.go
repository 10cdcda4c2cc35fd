package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	"github.com/go-json-experiment/json"
	"github.com/johbar/mrz-reader-service/internal/readerpool"
	"github.com/johbar/mrz-reader-service/pkg/mrz"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
	sloggin "github.com/samber/slog-gin"
)

const confidenceHeader = "X-Ocr-Confidence"

type OcrParams struct {
	Format string `form:"format" validate:"omitempty,oneof=hocr text"`
}

type MrzParams struct {
	DocType string `form:"docType" validate:"required,oneof=PASSPORT ID_CARD"`
}

// normalize accepts the document type in any case and with surrounding spaces.
func (p *MrzParams) normalize() {
	if d, err := mrz.ParseDocType(p.DocType); err == nil {
		p.DocType = string(d)
	}
}

type MrzResponse struct {
	Mrz        *mrz.Info `json:"mrz"`
	Confidence int       `json:"confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router returns the HTTP handler of the service.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(sloggin.New(s.log), gin.Recovery())
	router.POST("/ocr", s.handleOcr)
	router.POST("/mrz", s.handleMrz)
	router.GET("/healthz", s.handleHealth)
	router.GET("/debug/vars", expvar.Handler())
	return router
}

// readBody reads the request body, failing if it exceeds the configured maximum size.
func (s *Service) readBody(c *gin.Context) ([]byte, bool) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.conf.MaxFileSizeBytes))
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, http.StatusRequestEntityTooLarge, err)
		} else {
			s.writeError(c, http.StatusBadRequest, err)
		}
		return nil, false
	}
	if len(data) == 0 {
		s.writeError(c, http.StatusBadRequest, errors.New("empty request body"))
		return nil, false
	}
	return data, true
}

func (s *Service) handleOcr(c *gin.Context) {
	var params OcrParams
	if err := c.ShouldBindQuery(&params); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(params); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	format := tesswrap.Format(params.Format)
	if format == "" {
		format = tesswrap.Format(s.conf.OutputFormat)
	}
	data, ok := s.readBody(c)
	if !ok {
		return
	}
	res, err := s.OCR(c.Request.Context(), data, format)
	if err != nil {
		s.log.Error("OCR failed", "err", err)
		s.writeError(c, statusFor(err), err)
		return
	}
	c.Header(confidenceHeader, strconv.Itoa(res.Confidence))
	contentType := "text/plain; charset=utf-8"
	if res.Format == tesswrap.FormatHOCR {
		contentType = "text/html; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, []byte(res.Text))
}

func (s *Service) handleMrz(c *gin.Context) {
	var params MrzParams
	if err := c.ShouldBindQuery(&params); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	params.normalize()
	if err := s.validate.Struct(params); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	data, ok := s.readBody(c)
	if !ok {
		return
	}
	info, conf, err := s.ReadMRZ(c.Request.Context(), data, mrz.DocType(params.DocType))
	if err != nil {
		s.log.Info("Reading MRZ failed", "docType", params.DocType, "err", err)
		s.writeError(c, statusFor(err), err)
		return
	}
	s.writeJSON(c, http.StatusOK, MrzResponse{Mrz: info, Confidence: conf})
}

func (s *Service) handleHealth(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, map[string]any{
		"status":    "ok",
		"tesseract": tesswrap.Version,
		"readers":   s.pool.Size(),
		"idle":      s.pool.Idle(),
	})
}

func (s *Service) writeJSON(c *gin.Context, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("Could not encode response", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", b)
}

func (s *Service) writeError(c *gin.Context, status int, err error) {
	s.writeJSON(c, status, errorResponse{Error: err.Error()})
}

// statusFor maps errors of the OCR pipeline to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, tesswrap.ErrBusy), errors.Is(err, readerpool.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, mrz.ErrUnknownDocType):
		return http.StatusBadRequest
	case errors.Is(err, tesswrap.ErrNoText),
		errors.Is(err, tesswrap.ErrRecognition),
		errors.Is(err, ErrNoImages),
		errors.Is(err, mrz.ErrNotFound),
		errors.Is(err, mrz.ErrCheckDigit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
