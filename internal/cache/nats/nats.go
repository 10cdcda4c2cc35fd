// Package nats connects the service to an external or embedded NATS server.
package nats

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/johbar/mrz-reader-service/internal/config"
	"github.com/nats-io/nats.go"
)

const clientName = "mrz-reader"

var errNatsNotEmbedded = errors.New("NATS has not been embedded in this build")

// storeDir is where the embedded server keeps JetStream data, so cached results survive restarts.
func storeDir(conf config.MrzConfig) string {
	if conf.NatsStoreDir != "" {
		return conf.NatsStoreDir
	}
	return filepath.Join(os.TempDir(), clientName+"-jetstream")
}

func readyTimeout(conf config.MrzConfig) time.Duration {
	if conf.NatsTimeout > 0 {
		return conf.NatsTimeout
	}
	return 5 * time.Second
}

// Connect returns a connection to the NATS server configured by MRZ_NATS_URL.
// Without URL, an embedded server is started if it is compiled in.
// If neither is available, Connect returns nil and no error: the service runs without NATS.
func Connect(conf config.MrzConfig, log *slog.Logger) (*nats.Conn, error) {
	if conf.NatsUrl != "" {
		return SetupNatsConnection(conf, log)
	}
	if !NatsEmbedded {
		log.Info("No NATS URL configured and NATS is not embedded. Running without NATS.")
		return nil, nil
	}
	nc, err := ConnectToEmbeddedNatsServer(conf)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to embedded NATS server", "exposed", conf.ExposeNats)
	return nc, nil
}

// SetupNatsConnection connects the service to an external NATS server, retrying as configured.
func SetupNatsConnection(conf config.MrzConfig, log *slog.Logger) (*nats.Conn, error) {
	var nc *nats.Conn
	var err error
	var attempts int = 0

	log.Info("Try connecting to NATS", "url", conf.NatsUrl, "timeoutSecs", conf.NatsTimeout.Seconds(), "count", attempts)
	for nc == nil {
		attempts++
		nc, err = nats.Connect(conf.NatsUrl, nats.Name(clientName), nats.Timeout(conf.NatsTimeout))
		if err != nil {
			log.Error("Connecting to NATS failed",
				"url", conf.NatsUrl,
				"timeoutSecs", conf.NatsTimeout.Seconds(),
				"err", err,
				"count", attempts,
				"maxRetries", conf.NatsConnectRetries)
			if attempts > conf.NatsConnectRetries {
				log.Error("Connecting to NATS failed. Retry count exceeded", "err", err, "maxRetries", conf.NatsConnectRetries)
				return nil, err
			}
			time.Sleep(time.Second)
		} else {
			return nc, nil
		}
	}

	return nc, err
}
