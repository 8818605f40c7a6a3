package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/logging"
)

// State is the push connection state.
type State int32

const (
	Closed State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	DefaultURL          = "ws://localhost:4000"
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultEventBuffer  = 256
	defaultSendBuffer   = 16
	// A connection that stayed open this long resets the backoff sequence.
	defaultStableAfter = 10 * time.Second
)

// ErrAlreadyStarted is returned by Start on a running manager.
var ErrAlreadyStarted = errors.New("push channel already started")

// Config configures a Manager.
type Config struct {
	URL            string
	Dialer         Dialer
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StableAfter    time.Duration
	EventBuffer    int
	SendBuffer     int
	Logger         *zerolog.Logger
}

// Manager owns the single push connection.
type Manager struct {
	url          string
	dialer       Dialer
	dialTimeout  time.Duration
	writeTimeout time.Duration
	initial      time.Duration
	maxBackoff   time.Duration
	stableAfter  time.Duration
	sendBuffer   int
	logger       zerolog.Logger

	state  atomic.Int32
	events chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	out    chan []byte
}

// NewManager validates cfg and builds a closed Manager.
func NewManager(cfg Config) (*Manager, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return nil, fmt.Errorf("push url must be ws:// or wss://: %q", url)
	}

	m := &Manager{
		url:          url,
		dialer:       cfg.Dialer,
		dialTimeout:  cfg.DialTimeout,
		writeTimeout: cfg.WriteTimeout,
		initial:      cfg.InitialBackoff,
		maxBackoff:   cfg.MaxBackoff,
		stableAfter:  cfg.StableAfter,
		sendBuffer:   cfg.SendBuffer,
		logger:       logging.Component("live"),
	}
	if m.dialer == nil {
		m.dialer = WebsocketDialer{}
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = defaultDialTimeout
	}
	if m.writeTimeout <= 0 {
		m.writeTimeout = defaultWriteTimeout
	}
	if m.stableAfter <= 0 {
		m.stableAfter = defaultStableAfter
	}
	if m.sendBuffer <= 0 {
		m.sendBuffer = defaultSendBuffer
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	m.events = make(chan Event, eventBuffer)
	if cfg.Logger != nil {
		m.logger = *cfg.Logger
	}
	return m, nil
}

// Events is the inbound event stream. It lives as long as the Manager and
// is never closed, so it survives Stop/Start cycles.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start opens the connection in the background. It returns immediately;
// watch Events for EventState transitions.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, m.done)
	return nil
}

// Stop closes the connection and waits for the background loop to exit.
// It is safe to call on a stopped Manager.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if done == nil {
		return
	}
	m.setState(Closing)
	cancel()
	<-done
}

// Send queues a message frame. It is valid only while Open. A queued frame
// that the connection fails to write comes back as an EventUndelivered.
func (m *Manager) Send(to, text, token string) error {
	if m.State() != Open {
		return chat.ErrChannelUnavailable
	}
	data, err := EncodeMessage(to, text, token)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	// Held across the enqueue so serve cannot retire the queue in between.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return chat.ErrChannelUnavailable
	}
	select {
	case m.out <- data:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", chat.ErrChannelUnavailable)
	}
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.setState(Closed)

	backoff := NewBackoff(m.initial, m.maxBackoff)
	for {
		m.setState(Connecting)
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff.Next()
			m.logger.Debug().Err(err).Dur("retry_in", delay).Int("attempt", backoff.Attempts()).Msg("push dial failed")
			m.setState(Closed)
			if !sleepContext(ctx, delay) {
				return
			}
			continue
		}

		openedAt := time.Now()
		err = m.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		if time.Since(openedAt) >= m.stableAfter {
			backoff.Reset()
		}
		delay := backoff.Next()
		m.logger.Info().Err(err).Dur("retry_in", delay).Msg("push connection lost")
		m.setState(Closed)
		if !sleepContext(ctx, delay) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()
	return m.dialer.Dial(dialCtx, m.url)
}

// serve runs one connection until it fails or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	out := make(chan []byte, m.sendBuffer)

	m.mu.Lock()
	m.out = out
	m.mu.Unlock()

	var failed []byte
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		failed = m.writeLoop(connCtx, conn, out)
		// A dead writer must also stop the reader.
		cancel()
		_ = conn.Close()
	}()

	m.setState(Open)
	m.logger.Info().Str("url", m.url).Msg("push connection open")

	err := m.readLoop(connCtx, conn)

	m.mu.Lock()
	if m.out == out {
		m.out = nil
	}
	m.mu.Unlock()
	cancel()
	_ = conn.Close()
	wg.Wait()

	m.returnUndelivered(ctx, failed, out)
	return err
}

// returnUndelivered reports the frame the writer failed on and every frame
// still queued. Nothing is reported once Stop has been called.
func (m *Manager) returnUndelivered(ctx context.Context, failed []byte, out chan []byte) {
	if ctx.Err() != nil {
		return
	}
	var pending [][]byte
	if failed != nil {
		pending = append(pending, failed)
	}
drain:
	for {
		select {
		case data := <-out:
			pending = append(pending, data)
		default:
			break drain
		}
	}
	for _, data := range pending {
		event, err := undeliveredEvent(data)
		if err != nil {
			m.logger.Warn().Err(err).Msg("dropping undelivered frame")
			continue
		}
		select {
		case m.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		event, ok := DecodeFrame(data)
		if !ok {
			m.logger.Debug().Int("bytes", len(data)).Msg("ignoring unknown frame")
			continue
		}
		select {
		case m.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLoop drains out until ctx ends or a write fails. It returns the
// frame it could not write.
func (m *Manager) writeLoop(ctx context.Context, conn Conn, out <-chan []byte) []byte {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-out:
			writeCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
			err := conn.Write(writeCtx, data)
			cancel()
			if err != nil {
				m.logger.Warn().Err(err).Msg("push write failed")
				return data
			}
		}
	}
}

// setState records a transition and reports it on the event stream. State
// events are dropped rather than block when the stream is full; State()
// is authoritative.
func (m *Manager) setState(next State) {
	prev := State(m.state.Swap(int32(next)))
	if prev == next {
		return
	}
	select {
	case m.events <- Event{Kind: EventState, State: next}:
	default:
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
