// Package shellloopback is a loopback implementation of the shell half of
// the protocol (package protocol): it plays the shell role entirely
// in-process against the simulated segment/event backend, so a host built on
// package bridge can be developed and driven end-to-end without a live
// PowerShell child (out of scope per spec.md §1). It is the supplemented
// "no PowerShell available" development path, grounded on how kcptun's own
// test scaffolding pairs a client and server in one process rather than
// against a live network peer.
package shellloopback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vsbridge/vsbridge/internal/channel"
	"github.com/vsbridge/vsbridge/internal/shelldriver"
	"github.com/vsbridge/vsbridge/internal/transfer"
	"github.com/vsbridge/vsbridge/protocol"
)

// Shell holds the loopback shell's variable table and its canned command
// results (what a real shell would produce by evaluating the command text).
type Shell struct {
	mu        sync.Mutex
	variables map[string][]byte
	commands  map[string][]byte
	timeout   time.Duration
}

// New builds an empty Shell. timeout bounds how long the loopback side waits
// on a publication or ack; zero defaults to 5s.
func New(timeout time.Duration) *Shell {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Shell{
		variables: make(map[string][]byte),
		commands:  make(map[string][]byte),
		timeout:   timeout,
	}
}

// SetCommandResult registers the bytes a subsequent Export/RunCommandIntoBuffer
// for this exact command text should produce.
func (s *Shell) SetCommandResult(command string, result []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[command] = result
}

// SetVariable seeds a variable as if a prior Import had bound it.
func (s *Shell) SetVariable(name string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[name] = value
}

// Variable returns a previously bound variable's bytes, or nil.
func (s *Shell) Variable(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variables[name]
}

// Handler returns the shelldriver.Handler a shelldriver.Session drives this
// Shell through.
func (s *Shell) Handler() shelldriver.Handler {
	return s.handle
}

func (s *Shell) handle(ctx context.Context, rendered string) shelldriver.Result {
	if strings.Contains(rendered, "Out-String).Length") {
		return s.handleMeasure(rendered)
	}

	name, params := parseRendered(rendered)
	switch name {
	case "Import-Module":
		return shelldriver.Result{}
	case protocol.CmdImport:
		return s.handleImport(params)
	case protocol.CmdExport:
		return s.handleExport(params)
	case protocol.CmdExportVarBytes:
		return s.handleExportVarBytes(params)
	case protocol.CmdCopyVariableToSharedMem:
		return s.handleCopyVariable(params)
	case protocol.CmdNewWriteableBuffer:
		return shelldriver.Result{}
	default:
		return shelldriver.Result{Err: fmt.Errorf("shellloopback: unknown command %q", rendered)}
	}
}

func (s *Shell) handleMeasure(rendered string) shelldriver.Result {
	rest := strings.TrimPrefix(rendered, "$__vsbridge_result = ")
	parts := strings.SplitN(rest, ";", 2)
	command := strings.TrimSpace(parts[0])

	s.mu.Lock()
	result, ok := s.commands[command]
	s.mu.Unlock()
	if !ok {
		return shelldriver.Result{Err: fmt.Errorf("shellloopback: no registered result for command %q", command)}
	}
	s.mu.Lock()
	s.variables["$__vsbridge_result"] = result
	s.mu.Unlock()
	return shelldriver.Result{Stdout: strconv.Itoa(len(result))}
}

func (s *Shell) handleImport(params map[string]string) shelldriver.Result {
	name := params[protocol.ParamChannelName]
	ch, err := channel.OpenShell(name)
	if err != nil {
		return shelldriver.Result{Err: err}
	}
	defer ch.Close()

	reader := transfer.NewReader(ch, channel.H2S, nil)
	data, _, err := reader.ReadOnce(s.timeout)
	if err != nil {
		return shelldriver.Result{Err: err}
	}

	s.SetVariable(params[protocol.ParamVariable], data)
	return shelldriver.Result{}
}

func (s *Shell) handleExport(params map[string]string) shelldriver.Result {
	command := params[protocol.ParamCommand]

	s.mu.Lock()
	result, ok := s.commands[command]
	s.mu.Unlock()
	if !ok {
		return shelldriver.Result{Err: fmt.Errorf("shellloopback: no registered result for command %q", command)}
	}
	return s.publishToHost(params, result)
}

// handleExportVarBytes backs RunCommandIntoBuffer (spec.md §4.5, §9
// "supplemented features"): unlike handleExport/handleCopyVariable, whose
// payload must fit the frame_bytes their callers chose and fails otherwise, the
// host may size this channel's frame_bytes below the measured result length
// when it exceeds a single frame, so the publish must be able to fall back to
// a chunked transfer rather than fail (publishToHostAuto).
func (s *Shell) handleExportVarBytes(params map[string]string) shelldriver.Result {
	varName := params[protocol.ParamVariable]
	data := s.Variable(varName)
	if data == nil {
		return shelldriver.Result{Err: fmt.Errorf("shellloopback: variable %q not set", varName)}
	}
	return s.publishToHostAuto(params, data)
}

func (s *Shell) handleCopyVariable(params map[string]string) shelldriver.Result {
	varName := params[protocol.ParamVariable]
	data := s.Variable(varName)
	if data == nil {
		return shelldriver.Result{Err: fmt.Errorf("shellloopback: variable %q not set", varName)}
	}
	return s.publishToHost(params, data)
}

func (s *Shell) publishToHost(params map[string]string, data []byte) shelldriver.Result {
	name := params[protocol.ParamChannelName]
	ch, err := channel.OpenShell(name)
	if err != nil {
		return shelldriver.Result{Err: err}
	}
	defer ch.Close()

	writer := transfer.NewWriter(ch, channel.S2H, nil)
	if _, err := writer.WriteOnce(data, s.timeout); err != nil {
		return shelldriver.Result{Err: err}
	}
	return shelldriver.Result{}
}

// publishToHostAuto is publishToHost's chunking-aware counterpart: it drives
// transfer.Writer.WriteAuto instead of WriteOnce, so a payload larger than
// the channel's frame_bytes is transferred in chunks instead of failing with
// a size error.
func (s *Shell) publishToHostAuto(params map[string]string, data []byte) shelldriver.Result {
	name := params[protocol.ParamChannelName]
	ch, err := channel.OpenShell(name)
	if err != nil {
		return shelldriver.Result{Err: err}
	}
	defer ch.Close()

	writer := transfer.NewWriter(ch, channel.S2H, nil)
	if err := writer.WriteAuto(data, s.timeout); err != nil {
		return shelldriver.Result{Err: err}
	}
	return shelldriver.Result{}
}

// parseRendered inverts protocol.Command.Render: "Name -P1 v1 -P2 \"v 2\"".
func parseRendered(rendered string) (name string, params map[string]string) {
	params = make(map[string]string)
	fields := tokenize(rendered)
	if len(fields) == 0 {
		return "", params
	}
	name = fields[0]
	for i := 1; i < len(fields); i++ {
		if !strings.HasPrefix(fields[i], "-") {
			continue
		}
		paramName := strings.TrimPrefix(fields[i], "-")
		if i+1 < len(fields) {
			params[paramName] = fields[i+1]
			i++
		}
	}
	return name, params
}

func tokenize(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}
