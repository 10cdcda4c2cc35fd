package server

import (
	"context"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/johbar/mrz-reader-service/pkg/mrz"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

const queueGroup = "mrz-reader-service"

// RegisterNatsService adds the NATS micro service "mrz-reader" with the endpoints
// "ocr" and "read-mrz". Both expect the image or PDF as message data.
func (s *Service) RegisterNatsService(nc *nats.Conn) (micro.Service, error) {
	svc, err := micro.AddService(nc, micro.Config{
		Name:        "mrz-reader",
		Version:     "1.0.0",
		Description: "Recognizes text and machine readable zones in images of ID documents",
	})
	if err != nil {
		return nil, err
	}
	if err := svc.AddEndpoint("ocr",
		micro.HandlerFunc(s.handleOcrRequest),
		micro.WithEndpointQueueGroup(queueGroup)); err != nil {
		return nil, err
	}
	if err := svc.AddEndpoint("read-mrz",
		micro.HandlerFunc(s.handleMrzRequest),
		micro.WithEndpointQueueGroup(queueGroup)); err != nil {
		return nil, err
	}
	return svc, nil
}

// handleOcrRequest replies with the recognized text. The optional header "format" selects hocr or text.
func (s *Service) handleOcrRequest(req micro.Request) {
	params := OcrParams{Format: req.Headers().Get("format")}
	if err := s.validate.Struct(params); err != nil {
		req.Error("400", err.Error(), nil)
		return
	}
	format := tesswrap.Format(params.Format)
	if format == "" {
		format = tesswrap.Format(s.conf.OutputFormat)
	}
	data := req.Data()
	s.log.Info("Received Nats request", "endpoint", "ocr", "size", len(data), "format", format)
	res, err := s.OCR(context.Background(), data, format)
	if err != nil {
		req.Error(strconv.Itoa(statusFor(err)), err.Error(), nil)
		return
	}
	header := micro.Headers{confidenceHeader: []string{strconv.Itoa(res.Confidence)}}
	req.Respond([]byte(res.Text), micro.WithHeaders(header))
}

// handleMrzRequest replies with the MRZ as JSON. The header "docType" is required.
func (s *Service) handleMrzRequest(req micro.Request) {
	params := MrzParams{DocType: req.Headers().Get("docType")}
	params.normalize()
	if err := s.validate.Struct(params); err != nil {
		req.Error("400", err.Error(), nil)
		return
	}
	data := req.Data()
	s.log.Info("Received Nats request", "endpoint", "read-mrz", "size", len(data), "docType", params.DocType)
	info, conf, err := s.ReadMRZ(context.Background(), data, mrz.DocType(params.DocType))
	if err != nil {
		req.Error(strconv.Itoa(statusFor(err)), err.Error(), nil)
		return
	}
	b, err := json.Marshal(MrzResponse{Mrz: info, Confidence: conf})
	if err != nil {
		req.Error("500", err.Error(), nil)
		return
	}
	req.Respond(b)
}
