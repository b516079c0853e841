// Package bridge is the host-side Bridge Facade (spec.md §4.5): the
// ergonomic surface host code uses — publish, pull, read-view, run-and-capture
// — expressed in terms of the Transfer Engine (package transfer) and the
// shell driver (package shelldriver).
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vsbridge/vsbridge/internal/channel"
	"github.com/vsbridge/vsbridge/internal/config"
	"github.com/vsbridge/vsbridge/internal/events"
	"github.com/vsbridge/vsbridge/internal/metrics"
	"github.com/vsbridge/vsbridge/internal/shelldriver"
	"github.com/vsbridge/vsbridge/internal/transfer"
	"github.com/vsbridge/vsbridge/internal/xerrors"
	"github.com/vsbridge/vsbridge/protocol"
)

const defaultEncoding = "utf-8"

// loadVocabularyCommand is the bootstrap command issued once per
// shelldriver.Session before any transfer command (spec.md §4.5 "Idempotent
// initialization"). A real shell driver resolves this to sourcing the
// PowerShell module that implements the protocol.Command vocabulary; this
// module only needs the name to flow through so vocabulary loading is
// observable in tests.
const loadVocabularyCommand = "Import-Module VSBridgeShellVocabulary"

// Bridge is the host-side facade over one shell session.
type Bridge struct {
	cfg     config.Config
	shell   *shelldriver.Session
	metrics *metrics.Counters
	log     *zap.Logger
}

// New builds a Bridge over an already-constructed shell session. cfg
// supplies channel-name and timeout defaults; log may be nil.
func New(cfg config.Config, shell *shelldriver.Session, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{cfg: cfg, shell: shell, metrics: metrics.DefaultCounters, log: log}
}

func (b *Bridge) newChannelName() string {
	return fmt.Sprintf("%s_%s", b.cfg.ChannelNamePrefix, uuid.NewString())
}

func (b *Bridge) ensureVocabulary(ctx context.Context) error {
	return b.shell.EnsureVocabularyLoaded(ctx, loadVocabularyCommand)
}

// PublishResult is returned by Publish (spec.md §4.5).
type PublishResult struct {
	ChannelName string
	FrameBytes  uint64
	Length      uint64
	Sequence    uint64
	ZeroCopy    bool

	handle *channel.Handle
}

// Publish writes payload to the host->shell direction and instructs the
// shell to bind it to targetVariable (spec.md §4.5). If frameBytes is zero,
// the configured default is used; the payload must not exceed it. When
// zeroCopy is true the PublishResult's channel stays open until the View
// returned by Read is closed or Abandon is called, since the shell is told to
// hold a view rather than
// copy (spec.md: "the producer must then keep the segment alive for the
// variable's lifetime").
func (b *Bridge) Publish(ctx context.Context, payload []byte, targetVariable string, format protocol.Format, frameBytes uint64, channelName string, zeroCopy bool) (*PublishResult, error) {
	if frameBytes == 0 {
		frameBytes = b.cfg.DefaultFrameBytes
	}
	if uint64(len(payload)) > frameBytes {
		return nil, xerrors.New(xerrors.KindSize, channelName, fmt.Errorf("payload of %d bytes exceeds frame_bytes %d", len(payload), frameBytes))
	}
	if channelName == "" {
		channelName = b.newChannelName()
	}

	ch, err := channel.OpenHost(channelName, frameBytes)
	if err != nil {
		return nil, err
	}
	if err := b.ensureVocabulary(ctx); err != nil {
		ch.Close()
		return nil, err
	}

	importFormat := format
	if zeroCopy {
		importFormat = protocol.FormatZeroCopy
	}
	shellDone := b.shell.InvokeAsync(ctx, protocol.Import(channelName, frameBytes, importFormat, defaultEncoding, targetVariable))

	writer := transfer.NewWriter(ch, channel.H2S, b.log)
	seq, writeErr := writer.WriteOnce(payload, b.cfg.PublishTimeout())

	shellRes := <-shellDone
	combined := combineErrors(writeErr, shellErr(shellRes))
	if writeErr != nil {
		b.metrics.H2STimeouts.Add(1)
	} else {
		b.metrics.H2SPublications.Add(1)
	}
	if combined != nil {
		ch.Close()
		return nil, combined
	}

	pr := &PublishResult{
		ChannelName: channelName,
		FrameBytes:  frameBytes,
		Length:      uint64(len(payload)),
		Sequence:    seq,
		ZeroCopy:    zeroCopy,
		handle:      ch,
	}
	if !zeroCopy {
		ch.Close()
		pr.handle = nil
	}
	return pr, nil
}

// Abandon best-effort tears down the channel backing pr, for callers that
// want to release a zero-copy publish without reading it (spec.md §9: kept
// for parity with the source's inconsistent cleanup-helper path, made
// idempotent and safe to call alongside the always-torn-down-on-timeout
// policy).
func (b *Bridge) Abandon(pr *PublishResult) error {
	if pr == nil || pr.handle == nil {
		return nil
	}
	return pr.handle.Close()
}

// View is a read-only or owning borrow returned by Read, Pull, and
// RunCommandIntoBuffer.
type View struct {
	bytes   []byte
	closeFn func() error
	closed  bool
}

// Bytes returns the borrowed region slice. Valid until Close.
func (v *View) Bytes() []byte { return v.bytes }

// String decodes Bytes as UTF-8 text, for callers that fetched a text
// result into a zero-copy view.
func (v *View) String() string { return string(v.bytes) }

// Close releases the view and, where applicable, acks and closes the
// backing channel. Idempotent.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	if v.closeFn == nil {
		return nil
	}
	return v.closeFn()
}

// Read maps pr's host->shell region read-only (spec.md §4.5). Valid only
// when pr was published with zeroCopy=true; the caller must Close the
// returned View before pr's segment is closed via Abandon.
func (b *Bridge) Read(pr *PublishResult) (*View, error) {
	if pr.handle == nil {
		return nil, xerrors.New(xerrors.KindProtocol, pr.ChannelName, fmt.Errorf("Read is only valid for a zero-copy PublishResult"))
	}
	raw, err := pr.handle.ViewRegion(channel.H2S, 0, pr.Length)
	if err != nil {
		return nil, err
	}
	return &View{bytes: raw.Bytes(), closeFn: func() error {
		raw.Release()
		return pr.handle.Close()
	}}, nil
}

// Pull instructs the shell to copy sourceVariable into the shell->host
// region and returns a read-only borrow over it (spec.md §4.5). Fails if
// the variable's size exceeds frameBytes. timeout of zero uses the
// configured default (spec.md §6: max(30s, 2s/MiB*frame_bytes)). The shell
// command finishes only after the ack, so its result is collected when the
// View is closed: Close acks, waits for the shell, and returns any shell
// error.
func (b *Bridge) Pull(ctx context.Context, sourceVariable string, frameBytes uint64, timeout time.Duration) (*View, error) {
	if frameBytes == 0 {
		frameBytes = b.cfg.DefaultFrameBytes
	}
	if timeout == 0 {
		timeout = b.cfg.PullTimeout(frameBytes)
	}
	channelName := b.newChannelName()

	ch, err := channel.OpenHost(channelName, frameBytes)
	if err != nil {
		return nil, err
	}
	if err := b.ensureVocabulary(ctx); err != nil {
		ch.Close()
		return nil, err
	}

	shellDone := b.shell.InvokeAsync(ctx, protocol.CopyVariableToSharedMemory(channelName, frameBytes, sourceVariable))

	pub, res, err := ch.AwaitPublication(channel.S2H, timeout)
	if err != nil {
		ch.Close()
		return nil, err
	}
	if res != events.Signaled {
		b.metrics.S2HTimeouts.Add(1)
		ch.Close()
		return nil, xerrors.New(xerrors.KindTimeout, channelName, nil)
	}
	b.metrics.S2HPublications.Add(1)

	raw, err := ch.ViewRegion(channel.S2H, pub.Offset, pub.Length)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &View{bytes: raw.Bytes(), closeFn: func() error {
		raw.Release()
		if err := ch.Ack(channel.S2H); err != nil {
			ch.Close()
			return err
		}
		b.metrics.S2HAcks.Add(1)
		if err := shellErr(<-shellDone); err != nil {
			ch.Close()
			return err
		}
		return ch.Close()
	}}, nil
}

// WritableView is a writable borrow over a freshly created channel's
// shell->host region, bound on the shell side to targetVariable via
// New-SharedMemoryWriteableBuffer (spec.md §4.5 create_buffer).
type WritableView struct {
	region []byte
	handle *channel.Handle
}

// Bytes returns the writable region slice, sized exactly to the buffer's
// capacity.
func (w *WritableView) Bytes() []byte { return w.region }

// Capacity returns the buffer's total size.
func (w *WritableView) Capacity() uint64 { return uint64(len(w.region)) }

// Close releases the underlying channel. Coordination with the shell's own
// writes through the bound variable is the caller's responsibility (spec.md
// §4.5: "typical use: shell writes, host reads once").
func (w *WritableView) Close() error { return w.handle.Close() }

// CreateBuffer creates a channel, instructs the shell to bind a
// writer-wrapper over its shell->host region to targetVariable, and returns
// a writable borrow over the same region to the host (spec.md §4.5).
func (b *Bridge) CreateBuffer(ctx context.Context, size uint64, targetVariable string) (*WritableView, error) {
	channelName := b.newChannelName()
	ch, err := channel.OpenHost(channelName, size)
	if err != nil {
		return nil, err
	}
	if err := b.ensureVocabulary(ctx); err != nil {
		ch.Close()
		return nil, err
	}
	if _, err := b.shell.Invoke(ctx, protocol.NewWriteableBuffer(channelName, size, targetVariable)); err != nil {
		ch.Close()
		return nil, err
	}
	return &WritableView{region: ch.RawRegion(channel.S2H), handle: ch}, nil
}

// Fetch instructs the shell to evaluate command, serialize the result per
// format, and publish it to the shell->host direction; it reads, decodes,
// and returns the value (spec.md §4.5). format must not be FormatZeroCopy —
// use Pull or RunCommandIntoBuffer for a borrowed view instead.
func (b *Bridge) Fetch(ctx context.Context, command string, format protocol.Format, frameBytes uint64, timeout time.Duration) (any, error) {
	if format == protocol.FormatZeroCopy {
		return nil, xerrors.New(xerrors.KindProtocol, "", fmt.Errorf("Fetch does not support ZeroCopy; use RunCommandIntoBuffer"))
	}
	if frameBytes == 0 {
		frameBytes = b.cfg.DefaultFrameBytes
	}
	if timeout == 0 {
		timeout = b.cfg.PullTimeout(frameBytes)
	}
	channelName := b.newChannelName()

	ch, err := channel.OpenHost(channelName, frameBytes)
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := b.ensureVocabulary(ctx); err != nil {
		return nil, err
	}

	shellDone := b.shell.InvokeAsync(ctx, protocol.Export(channelName, frameBytes, command, format, defaultEncoding))

	reader := transfer.NewReader(ch, channel.S2H, b.log)
	data, _, readErr := reader.ReadOnce(timeout)

	shellRes := <-shellDone
	if combined := combineErrors(readErr, shellErr(shellRes)); combined != nil {
		if readErr != nil {
			b.metrics.S2HTimeouts.Add(1)
		}
		return nil, combined
	}
	b.metrics.S2HPublications.Add(1)
	b.metrics.S2HAcks.Add(1)

	return decode(format, data)
}

// RunCommandIntoBuffer first asks the shell to measure the byte length of
// command's result, then sizes the transfer in one shot if it fits a single
// frame, or else switches to chunked mode (spec.md §4.5, §9 "supplemented
// features" — the source's chunk-size auto-tuning). The single-shot path
// opens the channel sized exactly to the measured length and returns a
// zero-copy View over the shared region, as before; the chunked path caps the
// channel at the configured default frame size and drives
// transfer.Reader.ReadChunked, so the returned View owns an assembled copy
// rather than borrowing the segment. On the single-shot path the shell's
// result is collected when the View is closed, after the ack, and a shell
// error is returned from Close.
func (b *Bridge) RunCommandIntoBuffer(ctx context.Context, command string, timeout time.Duration) (*View, error) {
	if timeout == 0 {
		timeout = b.cfg.PublishTimeout()
	}
	const resultVar = "$__vsbridge_result"
	measure := fmt.Sprintf("%s = %s; (%s | Out-String).Length", resultVar, command, resultVar)
	lengthText, err := b.shell.InvokeRaw(ctx, measure)
	if err != nil {
		return nil, err
	}
	length, err := strconv.ParseUint(strings.TrimSpace(lengthText), 10, 64)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindProtocol, "", err, fmt.Sprintf("parse measured length %q", lengthText))
	}
	if length == 0 {
		return nil, xerrors.New(xerrors.KindSize, "", fmt.Errorf("command produced a zero-byte result"))
	}

	frameBytes := length
	chunked := false
	if frameBytes > b.cfg.DefaultFrameBytes {
		frameBytes = b.cfg.DefaultFrameBytes
		chunked = true
	}

	channelName := b.newChannelName()
	ch, err := channel.OpenHost(channelName, frameBytes)
	if err != nil {
		return nil, err
	}
	if err := b.ensureVocabulary(ctx); err != nil {
		ch.Close()
		return nil, err
	}

	shellDone := b.shell.InvokeAsync(ctx, protocol.ExportVarBytes(channelName, frameBytes, resultVar, defaultEncoding))

	if chunked {
		reader := transfer.NewReader(ch, channel.S2H, b.log)
		data, readErr := reader.ReadChunked(timeout)

		shellRes := <-shellDone
		if combined := combineErrors(readErr, shellErr(shellRes)); combined != nil {
			if readErr != nil {
				b.metrics.S2HTimeouts.Add(1)
			}
			ch.Close()
			return nil, combined
		}
		b.metrics.S2HPublications.Add(1)
		b.metrics.S2HAcks.Add(1)

		ch.Close()
		return &View{bytes: data}, nil
	}

	pub, res, err := ch.AwaitPublication(channel.S2H, timeout)
	if err != nil {
		ch.Close()
		return nil, err
	}
	if res != events.Signaled {
		ch.Close()
		return nil, xerrors.New(xerrors.KindTimeout, channelName, nil)
	}

	raw, err := ch.ViewRegion(channel.S2H, pub.Offset, pub.Length)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &View{bytes: raw.Bytes(), closeFn: func() error {
		raw.Release()
		if err := ch.Ack(channel.S2H); err != nil {
			ch.Close()
			return err
		}
		if err := shellErr(<-shellDone); err != nil {
			ch.Close()
			return err
		}
		return ch.Close()
	}}, nil
}

func decode(format protocol.Format, data []byte) (any, error) {
	switch format {
	case protocol.FormatBytes:
		return data, nil
	case protocol.FormatString:
		return string(data), nil
	case protocol.FormatJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, xerrors.New(xerrors.KindProtocol, "", fmt.Errorf("decoding Json result: %w", err))
		}
		return v, nil
	default:
		return nil, xerrors.New(xerrors.KindProtocol, "", fmt.Errorf("unknown format %q", format))
	}
}

func shellErr(res shelldriver.Result) error {
	if res.Err != nil {
		return res.Err
	}
	if res.Stderr != "" {
		return xerrors.New(xerrors.KindShell, "", fmt.Errorf("%s", res.Stderr))
	}
	return nil
}

// combineErrors surfaces both a channel-side and a shell-side error when
// they disagree, per spec.md §7: "on contradictory signals... the facade
// surfaces both."
func combineErrors(channelErr, shellE error) error {
	switch {
	case channelErr == nil && shellE == nil:
		return nil
	case channelErr == nil:
		return shellE
	case shellE == nil:
		return channelErr
	default:
		return fmt.Errorf("channel error: %v; shell error: %v", channelErr, shellE)
	}
}
