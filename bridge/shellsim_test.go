package bridge

import (
	"time"

	"github.com/vsbridge/vsbridge/internal/shellloopback"
)

// fakeShell is the in-process shell double bridge's tests drive through a
// shelldriver.Session, so these tests exercise the real wire protocol
// without a PowerShell child. All behavior lives in package shellloopback,
// which cmd/vsbridge-shelltest also uses as its production loopback driver.
type fakeShell struct {
	*shellloopback.Shell
}

func newFakeShell() *fakeShell {
	return &fakeShell{Shell: shellloopback.New(2 * time.Second)}
}
