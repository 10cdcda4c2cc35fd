package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/johbar/mrz-reader-service/pkg/mrz"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
	"go-simpler.org/env"
)

// MrzConfig represents the configuration of this service
type MrzConfig struct {
	// Name of the object store bucket in NATS caching recognition results
	// Default: MRZ_RESULTS
	Bucket string `env:"MRZ_BUCKET" default:"MRZ_RESULTS"`
	// Disable the result cache even if NATS is connected
	NoCache bool `env:"MRZ_NO_CACHE" default:"false"`
	// wether to expose embedded NATS server to other clients. Default: false
	ExposeNats bool `env:"MRZ_EXPOSE_NATS" default:"false"`
	// Add source info to log statement. Default: false
	Debug bool `env:"MRZ_DEBUG" default:"false"`
	// If true the service will exit with an error if NATS or JetStream can't be connected
	FailWithoutJetstream bool `env:"MRZ_FAIL_WITHOUT_JS" default:"false"`
	// Log level (DEBUG, INFO, WARN, ERROR)
	LogLevelStr string `env:"MRZ_LOG_LEVEL" default:"INFO"`
	LogLevel    slog.Level
	// Maximum size of an uploaded image or PDF
	MaxFileSize      string `env:"MRZ_MAX_FILE_SIZE" default:"20MiB"`
	MaxFileSizeBytes uint64
	// NATS max msg size (embedded server only)
	NatsMaxPayload int32 `env:"MRZ_MAX_PAYLOAD" default:"8388608"`
	// embedded NATS server storage location. Default: /tmp/nats
	NatsStoreDir string `env:"MRZ_NATS_STORE_DIR"`
	// embedded NATS server host/ip address, if exposed. Default: localhost
	NatsHost string `env:"MRZ_NATS_HOST" default:"localhost"`
	// embedded NATS server port, if exposed. Default: 4222
	NatsPort int `env:"MRZ_NATS_PORT" default:"4222"`
	// External NATS URL, e.g. nats://localhost:4222. If empty and NATS is embedded, the embedded server is used.
	NatsUrl string `env:"MRZ_NATS_URL"`
	// Timeout for the external NATS connection
	NatsTimeout time.Duration `env:"MRZ_NATS_TIMEOUT" default:"15s"`
	// NatsConnectRetries is the number of attempts to connect to external NATS server(s)
	NatsConnectRetries int `env:"MRZ_NATS_CONNECT_RETRIES" default:"10"`
	// if true, disable HTTP Server in favor of NATS Microservice interface
	NoHttp bool `env:"MRZ_NO_HTTP" default:"false"`
	// How many replicas of the bucket to create. Default: 1
	Replicas int `env:"MRZ_REPLICAS" default:"1"`
	// HTTP listen address and/or port. Default: ':8080'
	SrvAddr string `env:"MRZ_HOST_PORT" default:":8080"`

	// Directory containing the trained data files. Empty means Tesseract's default.
	TessdataPrefix string `env:"MRZ_TESSDATA_PREFIX"`
	// List of 3-letter language codes, separated by `+` to be passed to Tesseract.
	// NOTE: The languages need to be installed. A trained model for the OCR-B font is recommended.
	TesseractLangs string `env:"MRZ_TESSERACT_LANGS" default:"eng"`
	// Tesseract page segmentation mode (0-13). Default: 6 (single uniform block of text)
	PageSegMode int `env:"MRZ_PSM" default:"6"`
	// Output format of the OCR endpoint: hocr or text
	OutputFormat string `env:"MRZ_OUTPUT_FORMAT" default:"hocr"`
	// Timeout of a single recognition. Zero disables it.
	OcrTimeout time.Duration `env:"MRZ_OCR_TIMEOUT" default:"30s"`
	// If true, a busy reader rejects requests instead of queueing them
	FailWhenBusy bool `env:"MRZ_FAIL_WHEN_BUSY" default:"false"`
	// Number of Tesseract engines running in parallel
	PoolSize int `env:"MRZ_POOL_SIZE" default:"2"`
	// Preprocess images (grayscale, contrast, sharpen, binarize) before recognition
	Preprocess bool `env:"MRZ_PREPROCESS" default:"true"`
	// Join words split by a hyphen at the end of a line in plain text results
	Dehyphenate bool `env:"MRZ_DEHYPHENATE" default:"false"`
	// Document type (PASSPORT or ID_CARD) the one-shot mode reads the MRZ of. Empty means plain OCR.
	DocType string `env:"MRZ_DOC_TYPE"`
	// Number of frames a reading has to be seen in before it is reported by the one-shot mode
	TrackerMinCount int `env:"MRZ_TRACKER_MIN_COUNT" default:"1"`
}

// NewMrzConfigFromEnv returns a service config object
// populated with defaults and values from environment vars
func NewMrzConfigFromEnv() (*MrzConfig, error) {
	var cfg MrzConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, err
	}
	err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelStr))
	if err != nil {
		return nil, fmt.Errorf("parsing log level from env: %w", err)
	}
	maxSize, err := humanize.ParseBytes(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("parsing max file size from env: %w", err)
	}
	cfg.MaxFileSizeBytes = maxSize
	if !tesswrap.PageSegMode(cfg.PageSegMode).Valid() {
		return nil, fmt.Errorf("page segmentation mode %d out of range", cfg.PageSegMode)
	}
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", cfg.PoolSize)
	}
	if f := tesswrap.Format(cfg.OutputFormat); f != tesswrap.FormatHOCR && f != tesswrap.FormatText {
		return nil, fmt.Errorf("unknown output format %q", cfg.OutputFormat)
	}
	if cfg.DocType != "" {
		docType, err := mrz.ParseDocType(cfg.DocType)
		if err != nil {
			return nil, err
		}
		cfg.DocType = string(docType)
	}
	return &cfg, nil
}

// ReaderOptions translates the OCR related settings to options for [tesswrap.New].
// Readers always produce hOCR, since plain text can be derived from it but not vice versa.
func (c *MrzConfig) ReaderOptions(logger *slog.Logger) tesswrap.Options {
	return tesswrap.Options{
		DataPath:     c.TessdataPrefix,
		Languages:    c.TesseractLangs,
		PageSegMode:  tesswrap.PageSegMode(c.PageSegMode),
		Format:       tesswrap.FormatHOCR,
		Timeout:      c.OcrTimeout,
		FailWhenBusy: c.FailWhenBusy,
		Logger:       logger,
	}
}

// NewLogger creates the JSON logger for the service, honoring level and debug settings.
func (c *MrzConfig) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel, AddSource: c.Debug}))
}
