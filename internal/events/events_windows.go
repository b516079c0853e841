//go:build windows

package events

import (
	"time"

	"golang.org/x/sys/windows"
)

// winEvent wraps an auto-reset named Win32 event, following the
// windows.CreateEvent/SetEvent/WaitForSingleObject calling convention carried
// in the retrieval pack's containerd shim_windows.go (there used for a
// single debug-dump event; here for the channel's four rendezvous events).
type winEvent struct {
	h windows.Handle
}

func createOrOpen(name string) (Event, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	// manualReset=false -> auto-reset: a successful wait atomically resets
	// the event, so exactly one wait is admitted per signal.
	h, err := windows.CreateEvent(nil, 0, 0, namePtr)
	if h == 0 {
		return nil, err
	}
	return &winEvent{h: h}, nil
}

func (e *winEvent) Signal() error {
	return windows.SetEvent(e.h)
}

func (e *winEvent) Wait(timeout time.Duration) (WaitResult, error) {
	ms := uint32(timeout.Milliseconds())
	s, err := windows.WaitForSingleObject(e.h, ms)
	switch s {
	case windows.WAIT_OBJECT_0:
		return Signaled, nil
	case uint32(windows.WAIT_TIMEOUT):
		return TimedOut, nil
	case windows.WAIT_ABANDONED:
		return Abandoned, nil
	default:
		return Abandoned, err
	}
}

func (e *winEvent) Close() error {
	if e.h == 0 {
		return nil
	}
	err := windows.CloseHandle(e.h)
	e.h = 0
	return err
}
