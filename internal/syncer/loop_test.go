package syncer

import (
	"context"
	"encoding/hex"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/csync/internal/clip"
	"go.klb.dev/csync/internal/formatter"
	"go.klb.dev/csync/internal/frame"
	"go.klb.dev/csync/internal/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type harness struct {
	t      *testing.T
	relay  *transport.Memory
	board  *clip.Memory
	loop   *Loop
	peer   *transport.Client
	cancel context.CancelFunc
	errCh  chan error
}

// start runs a loop for device "desk" watching "laptop".
func start(t *testing.T, mode Mode) *harness {
	t.Helper()
	relay := transport.NewMemory()
	board := clip.NewMemory()
	desk := transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "desk"})
	h := &harness{
		t:     t,
		relay: relay,
		board: board,
		loop:  New(board, desk, Config{Mode: mode, Peers: []string{"laptop"}}),
		peer:  transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "laptop"}),
		errCh: make(chan error, 1),
	}
	assert.Equal(t, Idle, h.loop.State())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errCh <- h.loop.Run(ctx) }()
	require.Eventually(t, func() bool { return h.loop.State() == Listening }, waitFor, tick)
	t.Cleanup(func() {
		cancel()
		board.Close()
	})
	return h
}

// sent returns the payloads the loop published on its own channel.
func (h *harness) sent() [][]byte {
	var out [][]byte
	for _, m := range h.relay.Published() {
		if m.Channel != "/csync/desk" {
			continue
		}
		raw, err := hex.DecodeString(m.Payload)
		require.NoError(h.t, err)
		f, err := frame.Decode(raw, "")
		require.NoError(h.t, err)
		out = append(out, f.Payload)
	}
	return out
}

func (h *harness) waitSent(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.sent()) == n }, waitFor, tick)
}

func (h *harness) waitWrites(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.board.Writes()) == n }, waitFor, tick)
}

func (h *harness) fromPeer(text string) {
	h.t.Helper()
	require.NoError(h.t, h.peer.Send(context.Background(), frame.NewText([]byte(text))))
}

func (h *harness) result() error {
	h.t.Helper()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(waitFor):
		h.t.Fatal("loop did not return")
		return nil
	}
}

func TestLocalChangeIsPublished(t *testing.T) {
	h := start(t, Bidirectional)
	h.board.Copy(frame.KindText, []byte("hello"))
	h.waitSent(1)
	assert.Equal(t, []byte("hello"), h.sent()[0])
}

func TestIdenticalLocalChangesPublishOnce(t *testing.T) {
	h := start(t, Bidirectional)
	h.board.Copy(frame.KindText, []byte("same"))
	h.board.Copy(frame.KindText, []byte("same"))
	h.board.Copy(frame.KindText, []byte("next"))
	h.waitSent(2)
	assert.Equal(t, [][]byte{[]byte("same"), []byte("next")}, h.sent())
}

func TestEmptyLocalChangeIsNotPublished(t *testing.T) {
	h := start(t, Bidirectional)
	h.board.Copy(frame.KindText, nil)
	h.board.Copy(frame.KindText, []byte("after"))
	h.waitSent(1)
	assert.Equal(t, []byte("after"), h.sent()[0])
}

func TestInboundFrameIsWrittenWithoutEcho(t *testing.T) {
	h := start(t, Bidirectional)
	h.fromPeer("from laptop")
	h.waitWrites(1)

	w := h.board.Writes()[0]
	assert.Equal(t, frame.KindText, w.Kind)
	assert.Equal(t, []byte("from laptop"), w.Data)

	// The write is reported by the clipboard watcher; it must not be sent
	// back. A later real change proves the echo was consumed.
	h.board.Copy(frame.KindText, []byte("typed locally"))
	h.waitSent(1)
	assert.Equal(t, []byte("typed locally"), h.sent()[0])
}

func TestInboundMatchingLastSentIsNotWritten(t *testing.T) {
	h := start(t, Bidirectional)
	h.board.Copy(frame.KindText, []byte("round trip"))
	h.waitSent(1)

	h.fromPeer("round trip")
	h.fromPeer("different")
	h.waitWrites(1)
	assert.Equal(t, []byte("different"), h.board.Writes()[0].Data)
}

func TestMalformedInboundIsDiscarded(t *testing.T) {
	h := start(t, Bidirectional)
	h.relay.Inject("/csync/laptop", "02")       // decodes to one byte
	h.relay.Inject("/csync/laptop", "nothex")   // not hex at all
	h.relay.Inject("/csync/laptop", "00090000") // unknown kind
	h.fromPeer("still alive")

	h.waitWrites(1)
	assert.Equal(t, []byte("still alive"), h.board.Writes()[0].Data)
	assert.Equal(t, Listening, h.loop.State())
}

// countingTransport records how many sends the loop attempted.
type countingTransport struct {
	Transport
	sends atomic.Int32
}

func (c *countingTransport) Send(ctx context.Context, f *frame.Frame) error {
	defer c.sends.Add(1)
	return c.Transport.Send(ctx, f)
}

func TestPublishFailureDoesNotStopLoop(t *testing.T) {
	relay := transport.NewMemory()
	relay.FailPublish(assert.AnError)
	board := clip.NewMemory()
	defer board.Close()
	ct := &countingTransport{Transport: transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "desk"})}
	l := New(board, ct, Config{Mode: ReadOnly})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	require.Eventually(t, func() bool { return l.State() == Listening }, waitFor, tick)

	board.Copy(frame.KindText, []byte("lost"))
	require.Eventually(t, func() bool { return ct.sends.Load() == 1 }, waitFor, tick)
	assert.Empty(t, relay.Published())

	relay.FailPublish(nil)
	board.Copy(frame.KindText, []byte("delivered"))
	require.Eventually(t, func() bool { return len(relay.Published()) == 1 }, waitFor, tick)
	assert.Equal(t, Listening, l.State())
}

func TestWriteOnlyNeverPublishes(t *testing.T) {
	h := start(t, WriteOnly)
	h.board.Copy(frame.KindText, []byte("local"))
	h.fromPeer("remote")
	h.waitWrites(1)
	assert.Empty(t, h.sent())
}

// spyBackend counts the calls that would read the local clipboard.
type spyBackend struct {
	*clip.Memory
	watches atomic.Int32
	reads   atomic.Int32
}

func (s *spyBackend) Watch() <-chan clip.Item {
	s.watches.Add(1)
	return s.Memory.Watch()
}

func (s *spyBackend) Read(kind frame.Kind) ([]byte, error) {
	s.reads.Add(1)
	return s.Memory.Read(kind)
}

func TestWriteOnlyNeverReadsClipboard(t *testing.T) {
	relay := transport.NewMemory()
	board := &spyBackend{Memory: clip.NewMemory()}
	defer board.Close()
	desk := transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "desk"})
	peer := transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "laptop"})
	l := New(board, desk, Config{Mode: WriteOnly, Peers: []string{"laptop"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	require.Eventually(t, func() bool { return l.State() == Listening }, waitFor, tick)

	require.NoError(t, peer.Send(context.Background(), frame.NewText([]byte("remote"))))
	require.Eventually(t, func() bool { return len(board.Writes()) == 1 }, waitFor, tick)
	assert.Zero(t, board.watches.Load())
	assert.Zero(t, board.reads.Load())
}

func TestReadOnlyNeverSubscribes(t *testing.T) {
	h := start(t, ReadOnly)
	assert.Equal(t, 0, h.relay.Subscribers())

	h.fromPeer("ignored")
	h.board.Copy(frame.KindText, []byte("published"))
	h.waitSent(1)
	assert.Empty(t, h.board.Writes())
}

func TestStreamClosedIsFatal(t *testing.T) {
	h := start(t, Bidirectional)
	h.relay.Disconnect()
	assert.ErrorIs(t, h.result(), ErrStreamClosed)
	assert.Equal(t, ShuttingDown, h.loop.State())
}

func TestRedisRelayLossIsFatal(t *testing.T) {
	s := miniredis.RunT(t)
	relay, err := transport.DialRedis(context.Background(), &redis.Options{Addr: s.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = relay.Close() })

	board := clip.NewMemory()
	defer board.Close()
	desk := transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "desk"})
	l := New(board, desk, Config{Mode: Bidirectional, Peers: []string{"laptop"}})

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()
	require.Eventually(t, func() bool { return l.State() == Listening }, waitFor, tick)

	s.Publish("/csync/laptop", "000268656c6c6f")
	require.Eventually(t, func() bool { return len(board.Writes()) == 1 }, waitFor, tick)

	s.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(waitFor):
		t.Fatal("loop kept running after the relay went away")
	}
	assert.Equal(t, ShuttingDown, l.State())
}

func TestClipboardClosedIsFatal(t *testing.T) {
	h := start(t, ReadOnly)
	h.board.Close()
	assert.ErrorIs(t, h.result(), ErrClipboardClosed)
}

func TestCancelStopsCleanly(t *testing.T) {
	h := start(t, Bidirectional)
	h.cancel()
	assert.NoError(t, h.result())
	assert.Equal(t, ShuttingDown, h.loop.State())
}

func TestSubscribeFailureIsReturned(t *testing.T) {
	relay := transport.NewMemory()
	require.NoError(t, relay.Close())
	board := clip.NewMemory()
	defer board.Close()

	c := transport.NewClient(relay, formatter.Transparent{}, transport.Config{Device: "desk"})
	l := New(board, c, Config{Mode: Bidirectional, Peers: []string{"laptop"}})
	err := l.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, ShuttingDown, l.State())
}

func TestModeFor(t *testing.T) {
	peers := []string{"laptop"}
	assert.Equal(t, Bidirectional, ModeFor(false, false, peers))
	assert.Equal(t, ReadOnly, ModeFor(true, false, peers))
	assert.Equal(t, WriteOnly, ModeFor(false, true, peers))
	assert.Equal(t, ReadOnly, ModeFor(false, false, nil))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "bidirectional", Bidirectional.String())
	assert.Equal(t, "write-only", WriteOnly.String())
	assert.Equal(t, "read-only", ReadOnly.String())
	assert.Equal(t, "listening", Listening.String())
}
