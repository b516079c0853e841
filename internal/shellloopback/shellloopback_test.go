package shellloopback

import (
	"context"
	"testing"
	"time"

	"github.com/vsbridge/vsbridge/internal/channel"
	"github.com/vsbridge/vsbridge/internal/transfer"
	"github.com/vsbridge/vsbridge/protocol"
)

func TestHandlerImportsHostPublishedData(t *testing.T) {
	s := New(time.Second)
	name := "loopback-test-import"

	host, err := channel.OpenHost(name, 64)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	payload := []byte("from the host")
	errc := make(chan error, 1)
	go func() {
		_, err := transfer.NewWriter(host, channel.H2S, nil).WriteOnce(payload, time.Second)
		errc <- err
	}()

	res := s.Handler()(context.Background(), protocol.Import(name, 64, protocol.FormatBytes, "utf-8", "$v").Render())
	if res.Err != nil {
		t.Fatalf("Handler(Import) returned error: %v", res.Err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteOnce: %v", err)
	}

	if string(s.Variable("$v")) != string(payload) {
		t.Fatalf("Variable($v) = %q, want %q", s.Variable("$v"), payload)
	}
}

func TestHandlerExportsRegisteredCommandResult(t *testing.T) {
	s := New(time.Second)
	s.SetCommandResult("Get-Thing", []byte("thing result"))
	name := "loopback-test-export"

	host, err := channel.OpenHost(name, 64)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	reader := transfer.NewReader(host, channel.S2H, nil)
	errc := make(chan error, 1)
	go func() {
		res := s.Handler()(context.Background(), protocol.Export(name, 64, "Get-Thing", protocol.FormatString, "utf-8").Render())
		if res.Err != nil {
			errc <- res.Err
			return
		}
		errc <- nil
	}()

	got, _, err := reader.ReadOnce(time.Second)
	if err != nil {
		t.Fatalf("ReadOnce: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Handler(Export): %v", err)
	}
	if string(got) != "thing result" {
		t.Fatalf("got %q, want %q", got, "thing result")
	}
}

func TestHandlerExportFailsForUnregisteredCommand(t *testing.T) {
	s := New(time.Second)
	res := s.Handler()(context.Background(), protocol.Export("loopback-test-missing", 64, "Get-Nothing", protocol.FormatString, "utf-8").Render())
	if res.Err == nil {
		t.Fatalf("expected error for unregistered command")
	}
}
