// Package shelldriver is a minimal stand-in for the out-of-scope "shell
// driver" (spec.md §1: launching/lifecycle of the PowerShell child, its
// line-oriented command submission, and stdout/stderr demultiplexing are
// explicitly not part of this specification). It exposes exactly the narrow
// surface the bridge facade needs — synchronous and asynchronous command
// invocation against a session that loads the protocol vocabulary exactly
// once — so the facade's own tests are hermetic without spawning a real
// powershell.exe.
package shelldriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/vsbridge/vsbridge/internal/xerrors"
	"github.com/vsbridge/vsbridge/protocol"
)

// Result is the outcome of one shell command invocation.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Handler evaluates one command and returns its result. A real driver
// implements this by writing the rendered command line to a PowerShell
// child's stdin and demultiplexing its stdout/stderr; this package only
// defines the seam.
type Handler func(ctx context.Context, rendered string) Result

// Session is one logical connection to a shell process. It tracks, per
// session, whether the protocol vocabulary has already been loaded —
// replacing the source's hidden flag on the shell object (spec.md §9
// "Hidden globals on the shell driver") with explicit state owned here.
type Session struct {
	handler Handler
	once    sync.Once
	loadErr error
}

// NewSession wraps handler as a Session. handler must not be nil.
func NewSession(handler Handler) *Session {
	return &Session{handler: handler}
}

// EnsureVocabularyLoaded loads the shell-side protocol vocabulary exactly
// once per session (spec.md §4.5 "Idempotent initialization"); subsequent
// calls are a no-op and return the first call's result.
func (s *Session) EnsureVocabularyLoaded(ctx context.Context, loadCommand string) error {
	s.once.Do(func() {
		res := s.handler(ctx, loadCommand)
		if res.Err != nil {
			s.loadErr = xerrors.Wrap(xerrors.KindShell, "", res.Err, "load protocol vocabulary")
			return
		}
		if res.Stderr != "" {
			s.loadErr = xerrors.New(xerrors.KindShell, "", fmt.Errorf("vocabulary load wrote to stderr: %s", res.Stderr))
		}
	})
	return s.loadErr
}

// Invoke renders cmd and evaluates it synchronously, surfacing a non-zero
// exit or non-empty stderr as a ShellError (spec.md §7).
func (s *Session) Invoke(ctx context.Context, cmd protocol.Command) (stdout string, err error) {
	res := s.handler(ctx, cmd.Render())
	if res.Err != nil {
		return "", xerrors.Wrap(xerrors.KindShell, "", res.Err, fmt.Sprintf("invoke %s", cmd.Name))
	}
	if res.Stderr != "" {
		return res.Stdout, xerrors.New(xerrors.KindShell, "", fmt.Errorf("%s: %s", cmd.Name, res.Stderr))
	}
	return res.Stdout, nil
}

// InvokeRaw evaluates a literal command line that isn't one of the
// protocol.Command vocabulary entries — used for the small bookkeeping
// queries the facade issues around the main transfer (e.g. measuring a
// result's byte length before sizing a buffer for it).
func (s *Session) InvokeRaw(ctx context.Context, rendered string) (stdout string, err error) {
	res := s.handler(ctx, rendered)
	if res.Err != nil {
		return "", xerrors.Wrap(xerrors.KindShell, "", res.Err, "invoke raw shell command")
	}
	if res.Stderr != "" {
		return res.Stdout, xerrors.New(xerrors.KindShell, "", fmt.Errorf("%s", res.Stderr))
	}
	return res.Stdout, nil
}

// InvokeAsync submits cmd and returns a channel that receives its single
// Result once the shell completes (spec.md §5: "a host operation... submits
// the shell command through an asynchronous interface that returns a
// completion future").
func (s *Session) InvokeAsync(ctx context.Context, cmd protocol.Command) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- s.handler(ctx, cmd.Render())
	}()
	return out
}
