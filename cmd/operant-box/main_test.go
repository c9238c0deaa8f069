package main

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/config"
	"github.com/sweeney/operant-box/internal/gpio"
	"github.com/sweeney/operant-box/internal/hostlink"
	"github.com/sweeney/operant-box/internal/metrics"
	"github.com/sweeney/operant-box/internal/mqtt"
	"github.com/sweeney/operant-box/internal/session"
	"github.com/sweeney/operant-box/internal/status"
	"github.com/sweeney/operant-box/internal/web"
)

// stepClock advances by step on every read. Only runLoop's goroutine reads it.
type stepClock struct {
	now, step clock.Millis
}

func (c *stepClock) Now() clock.Millis {
	v := c.now
	c.now += c.step
	return v
}

type harness struct {
	d     *daemon
	board *gpio.FakeBoard
	pub   *mqtt.FakePublisher
	tick  chan time.Time
	sig   chan os.Signal
	errCh chan error
}

func newHarness(t *testing.T, host *hostlink.Link) *harness {
	t.Helper()
	cfg := config.Default()
	sc, err := cfg.Session()
	require.NoError(t, err)

	board := gpio.NewFakeBoard()
	orch, err := session.New(sc, board, board, 0)
	require.NoError(t, err)

	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	wall := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	h := &harness{
		board: board,
		pub:   pub,
		tick:  make(chan time.Time),
		sig:   make(chan os.Signal, 1),
		errCh: make(chan error, 1),
	}
	h.d = &daemon{
		orch:       orch,
		clk:        &stepClock{step: 10},
		host:       host,
		publisher:  pub,
		mqttStatus: pub,
		tracker:    status.NewTracker(wall, statusConfig(cfg)),
		metrics:    metrics.New(prometheus.NewRegistry()),
		commands:   make(chan web.Command, webCommandQueue),
		now:        func() time.Time { return wall },
	}
	go func() { h.errCh <- h.d.runLoop(h.tick, h.sig) }()
	return h
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.tick <- time.Time{}
	}
}

func (h *harness) shutdown(t *testing.T) {
	t.Helper()
	h.sig <- syscall.SIGTERM
	require.NoError(t, <-h.errCh)
}

func findEvent(events []session.Event, kind session.EventKind) (session.Event, bool) {
	for _, e := range events {
		if e.Kind == kind {
			return e, true
		}
	}
	return session.Event{}, false
}

func TestRunLoopRewardedPress(t *testing.T) {
	h := newHarness(t, nil)
	h.board.Script("lever_left", false, true)

	h.d.commands <- web.CommandStart
	h.ticks(60)
	h.shutdown(t)

	kinds := h.pub.Kinds()
	assert.Subset(t, kinds, []session.EventKind{
		session.EventSessionStart,
		session.EventPress,
		session.EventCueOn,
		session.EventPumpOn,
		session.EventPumpOff,
		session.EventCueOff,
		session.EventSessionEnd,
	})
	assert.Equal(t, session.EventSessionStart, kinds[0])

	press, _ := findEvent(h.pub.Events, session.EventPress)
	assert.Equal(t, "left", press.Lever)
	assert.NotEmpty(t, press.SessionID)

	end, ok := findEvent(h.pub.Events, session.EventSessionEnd)
	require.True(t, ok)
	assert.Equal(t, reasonSignal, end.Reason)

	assert.False(t, h.board.Level(session.ChannelCue), "teardown drives the cue low")
	assert.False(t, h.board.Level(session.ChannelPump))

	require.Len(t, h.pub.SystemEvents, 1)
	assert.Equal(t, "SHUTDOWN", h.pub.SystemEvents[0].Event)
	assert.Equal(t, "SIGTERM", h.pub.SystemEvents[0].Reason)
	assert.Contains(t, string(h.pub.SystemEvents[0].RawPayload), `"SHUTDOWN"`)

	m := h.d.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rewards))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Presses.WithLabelValues("left", "active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues(reasonSignal)))
}

func TestRunLoopTrackerFollowsSession(t *testing.T) {
	h := newHarness(t, nil)

	h.d.commands <- web.CommandStart
	h.ticks(5)
	snap := h.d.tracker.Snapshot()
	assert.True(t, snap.Session.Context.Running)
	assert.True(t, snap.MQTTConnected)

	h.d.commands <- web.CommandStop
	h.ticks(3)
	snap = h.d.tracker.Snapshot()
	assert.False(t, snap.Session.Context.Running)
	assert.Equal(t, reasonOperator, snap.Session.Context.StopReason)

	h.shutdown(t)
}

func TestRunLoopIdleShutdown(t *testing.T) {
	h := newHarness(t, nil)

	h.d.commands <- web.CommandStop
	h.ticks(4)
	h.shutdown(t)

	assert.Empty(t, h.pub.Events)
	assert.Equal(t, []string{"SHUTDOWN"}, h.pub.SystemKinds())
}

func TestRunLoopPublishErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.pub.PublishError = assert.AnError

	h.d.commands <- web.CommandStart
	h.ticks(5)
	h.shutdown(t)

	assert.Empty(t, h.pub.Events)
	assert.Equal(t, []string{"SHUTDOWN"}, h.pub.SystemKinds())
}

// hostSide reads device frames from the far end of a pipe.
type hostSide struct {
	conn net.Conn

	mu    sync.Mutex
	lines []string
}

func newHostSide(conn net.Conn) *hostSide {
	h := &hostSide{conn: conn}
	go func() {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			h.mu.Lock()
			h.lines = append(h.lines, sc.Text())
			h.mu.Unlock()
		}
	}()
	return h
}

func (h *hostSide) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

func (h *hostSide) has(prefix string) bool {
	for _, l := range h.received() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func TestRunLoopHostLink(t *testing.T) {
	device, hostConn := net.Pipe()
	link := hostlink.New(device, 0, 0)
	t.Cleanup(func() { link.Close() })
	host := newHostSide(hostConn)

	_, err := hostConn.Write([]byte("LINK\nSTART\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(link.Commands()) == 2 }, time.Second, time.Millisecond)

	h := newHarness(t, link)
	h.ticks(110) // past the first ping at 1000 ms
	h.shutdown(t)

	require.Eventually(t, func() bool { return host.has("SESSION,end,") }, time.Second, time.Millisecond)
	assert.True(t, host.has("LINKED"))
	assert.True(t, host.has("SESSION,start,"))
	assert.True(t, host.has("PING"))
	for _, l := range host.received() {
		if strings.HasPrefix(l, "SESSION,end,") {
			assert.True(t, strings.HasSuffix(l, ","+reasonSignal), l)
		}
	}

	assert.NotContains(t, h.pub.Kinds(), session.EventPing, "pings stay on the host link")
	assert.Contains(t, h.pub.Kinds(), session.EventLinkUp)

	snap := h.d.tracker.Snapshot()
	assert.Positive(t, snap.HostLink.Sent)
}

func TestRunLoopHostEndCommand(t *testing.T) {
	device, hostConn := net.Pipe()
	link := hostlink.New(device, 0, 0)
	t.Cleanup(func() { link.Close() })
	newHostSide(hostConn)

	_, err := hostConn.Write([]byte("START\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(link.Commands()) == 1 }, time.Second, time.Millisecond)

	h := newHarness(t, link)
	h.ticks(3)

	_, err = hostConn.Write([]byte("END\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(link.Commands()) == 1 }, time.Second, time.Millisecond)
	h.ticks(3)
	h.shutdown(t)

	end, ok := findEvent(h.pub.Events, session.EventSessionEnd)
	require.True(t, ok)
	assert.Equal(t, reasonHost, end.Reason)
}

func TestRunLoopHostLinkLost(t *testing.T) {
	device, hostConn := net.Pipe()
	link := hostlink.New(device, 0, 0)
	t.Cleanup(func() { link.Close() })
	newHostSide(hostConn)

	_, err := hostConn.Write([]byte("LINK\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(link.Commands()) == 1 }, time.Second, time.Millisecond)

	h := newHarness(t, link)
	h.ticks(2)

	require.NoError(t, hostConn.Close())
	<-link.Done()
	h.ticks(50)
	h.shutdown(t)

	kinds := h.pub.Kinds()
	assert.Contains(t, kinds, session.EventLinkUp)
	assert.Contains(t, kinds, session.EventLinkDown)
}

func TestFrameFor(t *testing.T) {
	tests := []struct {
		event session.Event
		want  string
	}{
		{session.Event{Kind: session.EventPing}, "PING"},
		{session.Event{Kind: session.EventLinkUp}, "LINKED"},
		{session.Event{Kind: session.EventLinkDown}, "UNLINKED"},
		{session.Event{Kind: session.EventSessionStart, SessionID: "s1"}, "SESSION,start,s1,"},
		{session.Event{Kind: session.EventSessionEnd, SessionID: "s1", Reason: "reward_limit"}, "SESSION,end,s1,reward_limit"},
		{session.Event{Kind: session.EventRelease, Lever: "left", SessionTime: 1500, Duration: 230}, "EVT,release,left,1500,230"},
		{session.Event{Kind: session.EventPumpOn, SessionTime: 42}, "EVT,pump_on,,42,0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, frameFor(tt.event).Encode())
	}
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestHTTPPort(t *testing.T) {
	assert.Equal(t, 8080, httpPort(":8080"))
	assert.Equal(t, 80, httpPort("0.0.0.0:80"))
	assert.Equal(t, 0, httpPort(""))
	assert.Equal(t, 0, httpPort(":http"))
}

func TestPrintLevers(t *testing.T) {
	board := gpio.NewFakeBoard()
	board.Hold("lever_left", true)

	var out bytes.Buffer
	require.NoError(t, printLevers(&out, board, config.Default().Levers))
	assert.Equal(t, "left (pin 17, active): PRESSED\nright (pin 27, inactive): RELEASED\n", out.String())

	board.ReadError = assert.AnError
	assert.Error(t, printLevers(&out, board, config.Default().Levers))
}

func TestVersionCommand(t *testing.T) {
	cmd, err := newRootCmd()
	require.NoError(t, err)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestConfigPrintCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("box: rig3\ncontingency:\n  ratio: 4\n"), 0o644))

	cmd, err := newRootCmd()
	require.NoError(t, err)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "print", "--config", path, "--broker", "tcp://lab:1883"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "box: rig3")
	assert.Contains(t, out.String(), "ratio: 4")
	assert.Contains(t, out.String(), "broker: tcp://lab:1883")
}

func TestConfigPrintRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contingency:\n  ratio: 0\n"), 0o644))

	cmd, err := newRootCmd()
	require.NoError(t, err)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "print", "--config", path})
	assert.ErrorIs(t, cmd.Execute(), config.ErrInvalid)
}
