package channel

import (
	"testing"
	"time"

	"github.com/vsbridge/vsbridge/internal/events"
	"github.com/vsbridge/vsbridge/internal/segment"
	"github.com/vsbridge/vsbridge/internal/xerrors"
)

func TestOpenHostThenOpenShellShareState(t *testing.T) {
	name := "chan-test-open-host-shell"
	host, err := OpenHost(name, 64)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	shell, err := OpenShell(name)
	if err != nil {
		t.Fatalf("OpenShell: %v", err)
	}
	defer shell.Close()

	if shell.FrameBytes() != 64 {
		t.Fatalf("FrameBytes = %d, want 64", shell.FrameBytes())
	}
}

func TestPublishAwaitPublicationAck(t *testing.T) {
	name := "chan-test-publish-await-ack"
	host, err := OpenHost(name, 32)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()
	shell, err := OpenShell(name)
	if err != nil {
		t.Fatalf("OpenShell: %v", err)
	}
	defer shell.Close()

	payload := []byte("hello there")
	if err := host.WriteRegion(H2S, payload, 0); err != nil {
		t.Fatalf("WriteRegion: %v", err)
	}
	seq, err := host.Publish(H2S, 0, uint64(len(payload)), 0, 0, 0, true)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seq != 1 {
		t.Fatalf("Publish seq = %d, want 1", seq)
	}

	pub, res, err := shell.AwaitPublication(H2S, time.Second)
	if err != nil {
		t.Fatalf("AwaitPublication: %v", err)
	}
	if res != events.Signaled {
		t.Fatalf("AwaitPublication result = %v, want Signaled", res)
	}
	if pub.Seq != 1 || pub.Length != uint64(len(payload)) {
		t.Fatalf("unexpected publication: %+v", pub)
	}

	view, err := shell.ViewRegion(H2S, pub.Offset, pub.Length)
	if err != nil {
		t.Fatalf("ViewRegion: %v", err)
	}
	if string(view.Bytes()) != string(payload) {
		t.Fatalf("view bytes = %q, want %q", view.Bytes(), payload)
	}
	view.Release()

	if err := shell.Ack(H2S); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	ackRes, err := host.AwaitAck(H2S, time.Second)
	if err != nil {
		t.Fatalf("AwaitAck: %v", err)
	}
	if ackRes != events.Signaled {
		t.Fatalf("AwaitAck result = %v, want Signaled", ackRes)
	}
}

func TestAwaitPublicationTimesOutWithoutPublish(t *testing.T) {
	name := "chan-test-await-timeout"
	host, err := OpenHost(name, 32)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	_, res, err := host.AwaitPublication(S2H, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitPublication: %v", err)
	}
	if res != events.TimedOut {
		t.Fatalf("AwaitPublication result = %v, want TimedOut", res)
	}
}

func TestWriteRegionRejectsOverflow(t *testing.T) {
	host, err := OpenHost("chan-test-write-overflow", 8)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	err = host.WriteRegion(H2S, make([]byte, 9), 0)
	if err == nil {
		t.Fatalf("expected overflow error")
	}
	if !xerrors.Is(err, xerrors.KindSize) {
		t.Fatalf("expected SizeError, got %v", err)
	}
}

func TestPublishRejectsZeroLength(t *testing.T) {
	host, err := OpenHost("chan-test-publish-zero", 8)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	_, err = host.Publish(H2S, 0, 0, 0, 0, 0, true)
	if err == nil {
		t.Fatalf("expected error for zero-length publish")
	}
	if !xerrors.Is(err, xerrors.KindSize) {
		t.Fatalf("expected SizeError, got %v", err)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	host, err := OpenHost("chan-test-closed", 8)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := host.WriteRegion(H2S, []byte("x"), 0); err == nil {
		t.Fatalf("expected error writing to closed handle")
	} else if !xerrors.Is(err, xerrors.KindClosed) {
		t.Fatalf("expected Closed, got %v", err)
	}
}

func TestMarkCompleteAndMarkIdle(t *testing.T) {
	host, err := OpenHost("chan-test-state", 8)
	if err != nil {
		t.Fatalf("OpenHost: %v", err)
	}
	defer host.Close()

	if host.State(H2S) != segment.StateIdle {
		t.Fatalf("initial state = %d, want Idle", host.State(H2S))
	}
	host.MarkComplete(H2S)
	if host.State(H2S) != segment.StateComplete {
		t.Fatalf("state after MarkComplete = %d, want Complete", host.State(H2S))
	}
	host.MarkIdle(H2S)
	if host.State(H2S) != segment.StateIdle {
		t.Fatalf("state after MarkIdle = %d, want Idle", host.State(H2S))
	}
}

func TestDirectionString(t *testing.T) {
	if H2S.String() != "h2s" {
		t.Fatalf("H2S.String() = %q, want h2s", H2S.String())
	}
	if S2H.String() != "s2h" {
		t.Fatalf("S2H.String() = %q, want s2h", S2H.String())
	}
}
