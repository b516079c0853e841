package events

import (
	"testing"
	"time"
)

func TestCreateOrOpenSignalAndWait(t *testing.T) {
	s1, err := CreateOrOpen("evt-test-signal-wait")
	if err != nil {
		t.Fatalf("CreateOrOpen (creator): %v", err)
	}
	defer s1.Close()

	s2, err := CreateOrOpen("evt-test-signal-wait")
	if err != nil {
		t.Fatalf("CreateOrOpen (attacher): %v", err)
	}
	defer s2.Close()

	if err := s1.H2SReady.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	res, err := s2.H2SReady.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res != Signaled {
		t.Fatalf("Wait result = %v, want Signaled", res)
	}
}

func TestWaitTimesOutWithoutSignal(t *testing.T) {
	s, err := CreateOrOpen("evt-test-timeout")
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	defer s.Close()

	res, err := s.S2HAck.Wait(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res != TimedOut {
		t.Fatalf("Wait result = %v, want TimedOut", res)
	}
}

func TestAutoResetAdmitsExactlyOneWaitPerSignal(t *testing.T) {
	s, err := CreateOrOpen("evt-test-auto-reset")
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	defer s.Close()

	if err := s.H2SAck.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	res, err := s.H2SAck.Wait(time.Second)
	if err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if res != Signaled {
		t.Fatalf("first Wait result = %v, want Signaled", res)
	}

	res, err = s.H2SAck.Wait(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if res != TimedOut {
		t.Fatalf("second Wait result = %v, want TimedOut (event already consumed)", res)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := CreateOrOpen("evt-test-close-idempotent")
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
