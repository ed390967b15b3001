package natsutil

import (
	"testing"
	"time"

	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"go.uber.org/zap"
)

func TestConnectAndDrain(t *testing.T) {
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats-server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	cfg := config.DefaultConfig().NATS
	cfg.URL = ns.ClientURL()
	nc, err := Connect(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if !nc.IsConnected() {
		t.Fatal("expected connected client")
	}

	Drain(nc, 2*time.Second)
	if !nc.IsClosed() {
		t.Fatal("expected closed connection after drain")
	}
	Drain(nc, time.Second)
	Drain(nil, time.Second)
}

func TestConnectFailure(t *testing.T) {
	cfg := config.DefaultConfig().NATS
	cfg.URL = "nats://127.0.0.1:1"
	cfg.MaxReconnects = 0
	if _, err := Connect(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected connection error")
	}
}
