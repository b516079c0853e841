package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsbridge/vsbridge/internal/config"
	"github.com/vsbridge/vsbridge/internal/shelldriver"
	"github.com/vsbridge/vsbridge/internal/xerrors"
	"github.com/vsbridge/vsbridge/protocol"
)

func testBridge(t *testing.T, shell *fakeShell) *Bridge {
	t.Helper()
	cfg := config.Default()
	cfg.PublishTimeoutMS = 2000
	session := shelldriver.NewSession(shell.Handler())
	return New(cfg, session, nil)
}

func TestPublishThenReadZeroCopyRoundTrip(t *testing.T) {
	b := testBridge(t, newFakeShell())
	payload := []byte("the quick brown fox")

	pr, err := b.Publish(context.Background(), payload, "$target", protocol.FormatBytes, 0, "", true)
	require.NoError(t, err)
	require.True(t, pr.ZeroCopy)

	view, err := b.Read(pr)
	require.NoError(t, err)
	assert.Equal(t, payload, view.Bytes())
	require.NoError(t, view.Close())
}

func TestPublishNonZeroCopyClosesChannel(t *testing.T) {
	b := testBridge(t, newFakeShell())
	payload := []byte("hello")

	pr, err := b.Publish(context.Background(), payload, "$target", protocol.FormatBytes, 0, "", false)
	require.NoError(t, err)
	assert.False(t, pr.ZeroCopy)

	_, err = b.Read(pr)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.KindProtocol))
}

func TestPublishRejectsOversizePayload(t *testing.T) {
	b := testBridge(t, newFakeShell())
	payload := make([]byte, 100)

	_, err := b.Publish(context.Background(), payload, "$target", protocol.FormatBytes, 64, "", false)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.KindSize))
}

func TestPublishAcceptsExactFrameSizedPayload(t *testing.T) {
	b := testBridge(t, newFakeShell())
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}

	pr, err := b.Publish(context.Background(), payload, "$target", protocol.FormatBytes, 64, "", true)
	require.NoError(t, err)

	view, err := b.Read(pr)
	require.NoError(t, err)
	assert.Equal(t, payload, view.Bytes())
	require.NoError(t, view.Close())
}

func TestPullRoundTrip(t *testing.T) {
	shell := newFakeShell()
	shell.SetVariable("$source", []byte("pulled payload data"))
	b := testBridge(t, shell)

	view, err := b.Pull(context.Background(), "$source", 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pulled payload data", view.String())
	require.NoError(t, view.Close())
}

func TestPullTimesOutWhenShellNeverPublishes(t *testing.T) {
	shell := newFakeShell()
	// Variable not registered: handleCopyVariable returns an error result but
	// never publishes, so the host side must time out waiting on data_ready.
	b := testBridge(t, shell)

	_, err := b.Pull(context.Background(), "$missing", 4096, 200*time.Millisecond)
	require.Error(t, err)
}

func TestFetchStringFormat(t *testing.T) {
	shell := newFakeShell()
	shell.SetCommandResult("Get-Date", []byte("2026-07-31"))
	b := testBridge(t, shell)

	result, err := b.Fetch(context.Background(), "Get-Date", protocol.FormatString, 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-31", result)
}

func TestFetchJSONFormat(t *testing.T) {
	shell := newFakeShell()
	shell.SetCommandResult("Get-Config", []byte(`{"name":"vsbridge","count":3}`))
	b := testBridge(t, shell)

	result, err := b.Fetch(context.Background(), "Get-Config", protocol.FormatJSON, 0, time.Second)
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vsbridge", m["name"])
	assert.Equal(t, float64(3), m["count"])
}

func TestFetchRejectsZeroCopyFormat(t *testing.T) {
	b := testBridge(t, newFakeShell())

	_, err := b.Fetch(context.Background(), "Get-Date", protocol.FormatZeroCopy, 0, time.Second)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.KindProtocol))
}

func TestRunCommandIntoBufferRoundTrip(t *testing.T) {
	shell := newFakeShell()
	shell.SetCommandResult("Get-Process | Out-String", []byte("a long process listing\n"))
	b := testBridge(t, shell)

	view, err := b.RunCommandIntoBuffer(context.Background(), "Get-Process | Out-String", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a long process listing\n", view.String())
	require.NoError(t, view.Close())
}

func TestCreateBufferIsWritable(t *testing.T) {
	shell := newFakeShell()
	b := testBridge(t, shell)

	wv, err := b.CreateBuffer(context.Background(), 32, "$buf")
	require.NoError(t, err)
	require.EqualValues(t, 32, wv.Capacity())

	copy(wv.Bytes(), []byte("written by host"))
	require.NoError(t, wv.Close())
}

func TestAbandonIsIdempotentAndNilSafe(t *testing.T) {
	b := testBridge(t, newFakeShell())

	require.NoError(t, b.Abandon(nil))

	pr, err := b.Publish(context.Background(), []byte("x"), "$v", protocol.FormatBytes, 0, "", true)
	require.NoError(t, err)
	require.NoError(t, b.Abandon(pr))
	require.NoError(t, b.Abandon(pr))
}
