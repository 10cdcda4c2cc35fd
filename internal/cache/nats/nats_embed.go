//go:build embed_nats

package nats

import (
	"fmt"

	"github.com/johbar/mrz-reader-service/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = true

// embeddedOptions describes a single JetStream enabled server for the object store.
// It only listens on the network if MRZ_EXPOSE_NATS is set.
func embeddedOptions(conf config.MrzConfig) *server.Options {
	return &server.Options{
		ServerName: clientName,
		JetStream:  true,
		StoreDir:   storeDir(conf),
		MaxPayload: conf.NatsMaxPayload,
		DontListen: !conf.ExposeNats,
		Host:       conf.NatsHost,
		Port:       conf.NatsPort,
	}
}

// ConnectToEmbeddedNatsServer starts the embedded server and connects to it in process.
// The server shuts down when the returned connection is closed or drained.
func ConnectToEmbeddedNatsServer(conf config.MrzConfig) (*nats.Conn, error) {
	ns, err := server.NewServer(embeddedOptions(conf))
	if err != nil {
		return nil, fmt.Errorf("configuring embedded NATS: %w", err)
	}
	ns.ConfigureLogger()
	ns.Start()
	if !ns.ReadyForConnections(readyTimeout(conf)) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS not ready after %s", readyTimeout(conf))
	}
	nc, err := nats.Connect("", nats.InProcessServer(ns), nats.Name(clientName),
		nats.ClosedHandler(func(*nats.Conn) { ns.Shutdown() }))
	if err != nil {
		ns.Shutdown()
		return nil, err
	}
	return nc, nil
}
