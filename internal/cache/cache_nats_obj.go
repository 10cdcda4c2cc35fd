package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/johbar/mrz-reader-service/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	metaConfidence = "confidence"
	metaFormat     = "format"
	metaLanguages  = "languages"
)

type ObjectStoreCache struct {
	jetstream.ObjectStore
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

func New(conf config.MrzConfig, log *slog.Logger, nc *nats.Conn) (*ObjectStoreCache, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if nc == nil {
		return nil, errors.New("no connection to NATS")
	}
	js, err := setupJetstream(conf, nc, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Storage:     jetstream.FileStorage,
		Bucket:      conf.Bucket,
		Description: "OCR results by image hash",
		Compression: true,
		Replicas:    conf.Replicas,
	})
	if err != nil {
		log.Error("Creating NATS object store failed", "err", err)
		return nil, fmt.Errorf("initializing NATS object store: %w", err)
	}
	log.Info("NATS object store initialized.", "bucket", conf.Bucket)
	return &ObjectStoreCache{store, nc, js, log}, nil
}

func setupJetstream(conf config.MrzConfig, nc *nats.Conn, log *slog.Logger) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		log.Error("FATAL: Error when initializing NATS JetStream", "err", err.Error())
		return nil, err
	}

	for attempts := 0; attempts <= conf.NatsConnectRetries; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		_, err = js.AccountInfo(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, jetstream.ErrJetStreamNotEnabled) || errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount) {
				return nil, err
			}
			log.Error("NATS JetStream check failed. Is JetStream enabled in external NATS server(s)?",
				"err", err,
				"count", attempts,
				"maxRetries", conf.NatsConnectRetries)
			time.Sleep(time.Second)
		} else {
			return js, nil
		}
	}
	return nil, fmt.Errorf("retry count exceeded: %w", err)
}

func (store ObjectStoreCache) Get(key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := store.GetInfo(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving object metadata for %s: %w", key, err)
	}
	text, err := store.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("retrieving object %s from object store: %w", key, err)
	}
	return entryFromObject(info.Metadata, text)
}

func (store ObjectStoreCache) Save(key string, e Entry) error {
	m := jetstream.ObjectMeta{Name: key, Metadata: objectMetadata(e)}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	info, err := store.ObjectStore.Put(ctx, m, bytes.NewReader([]byte(e.Text)))
	if err != nil {
		return err
	}
	store.log.Debug("Saved recognition result in NATS object store", "key", key, "chunks", info.Chunks, "size", info.Size)
	return nil
}

func objectMetadata(e Entry) map[string]string {
	return map[string]string{
		metaConfidence: strconv.Itoa(e.Confidence),
		metaFormat:     e.Format,
		metaLanguages:  e.Languages,
	}
}

func entryFromObject(meta map[string]string, text []byte) (*Entry, error) {
	conf, err := strconv.Atoi(meta[metaConfidence])
	if err != nil {
		return nil, fmt.Errorf("invalid confidence in cached object: %w", err)
	}
	return &Entry{
		Text:       string(text),
		Confidence: conf,
		Format:     meta[metaFormat],
		Languages:  meta[metaLanguages],
	}, nil
}
