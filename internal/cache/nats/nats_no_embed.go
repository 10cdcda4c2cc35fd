//go:build !embed_nats

package nats

import (
	"github.com/johbar/mrz-reader-service/internal/config"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = false

// ConnectToEmbeddedNatsServer always fails. Build with the tag embed_nats to get a server.
func ConnectToEmbeddedNatsServer(_ config.MrzConfig) (*nats.Conn, error) {
	return nil, errNatsNotEmbedded
}
