package server

import (
	"strconv"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

func connectNats(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{DontListen: true})
	if err != nil {
		t.Fatal(err)
	}
	ns.Start()
	t.Cleanup(ns.Shutdown)
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func request(t *testing.T, nc *nats.Conn, subject string, data []byte, header map[string]string) *nats.Msg {
	t.Helper()
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range header {
		msg.Header.Set(k, v)
	}
	resp, err := nc.RequestMsg(msg, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestNatsService(t *testing.T) {
	f := newFixture(t)
	s := newTestService(t, testConfig(t), f.pages, nil)
	nc := connectNats(t)
	svc, err := s.RegisterNatsService(nc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.Stop() })

	resp := request(t, nc, "ocr", f.letter, map[string]string{"format": "text"})
	if code := resp.Header.Get(micro.ErrorCodeHeader); code != "" {
		t.Fatalf("got error %s: %s", code, resp.Header.Get(micro.ErrorHeader))
	}
	if string(resp.Data) != "Dear Sir\nkind regards" {
		t.Errorf("got %q", resp.Data)
	}
	if got := resp.Header.Get(confidenceHeader); got != "91" {
		t.Errorf("got confidence header %q", got)
	}

	resp = request(t, nc, "read-mrz", f.passport, map[string]string{"docType": "PASSPORT"})
	if code := resp.Header.Get(micro.ErrorCodeHeader); code != "" {
		t.Fatalf("got error %s: %s", code, resp.Header.Get(micro.ErrorHeader))
	}
	var mrzResp MrzResponse
	if err := json.Unmarshal(resp.Data, &mrzResp); err != nil {
		t.Fatal(err)
	}
	if mrzResp.Mrz == nil || mrzResp.Mrz.Surname != "ERIKSSON" {
		t.Errorf("unexpected response %s", resp.Data)
	}
}

func TestNatsServiceErrors(t *testing.T) {
	f := newFixture(t)
	s := newTestService(t, testConfig(t), f.pages, nil)
	nc := connectNats(t)
	svc, err := s.RegisterNatsService(nc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.Stop() })

	var cases = []struct {
		name    string
		subject string
		data    []byte
		header  map[string]string
		status  int
	}{
		{"invalid format", "ocr", f.letter, map[string]string{"format": "pdf"}, 400},
		{"not an image", "ocr", []byte("hello world"), nil, 415},
		{"blank", "ocr", f.blank, nil, 422},
		{"missing doc type", "read-mrz", f.passport, nil, 400},
		{"no mrz", "read-mrz", f.letter, map[string]string{"docType": "ID_CARD"}, 422},
		{"lower case doc type", "read-mrz", f.letter, map[string]string{"docType": "id_card"}, 422},
		{"unknown doc type", "read-mrz", f.passport, map[string]string{"docType": "visa"}, 400},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := request(t, nc, c.subject, c.data, c.header)
			if got := resp.Header.Get(micro.ErrorCodeHeader); got != strconv.Itoa(c.status) {
				t.Errorf("got error code %q, want %d", got, c.status)
			}
		})
	}
}
