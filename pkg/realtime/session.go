// Package realtime implements the live WebSocket session for the Ryver chat
// platform: a single long-lived connection that delivers inbound frames to
// registered handlers, correlates outbound commands with their
// acknowledgements, and recovers from connection loss.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ryver/pkg/protocol"
)

// State describes the connection lifecycle. It moves forward through
// Disconnected, Connecting, Open, Closing and Closed, except that an
// unexpected drop re-enters Connecting when auto-reconnect is enabled.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults applied by Options when a field is zero. The keepalive numbers
// match the ones used by the official web client.
const (
	DefaultAckTimeout     = 10 * time.Second
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
	DefaultPingInterval   = 10 * time.Second
	DefaultPingTimeout    = 5 * time.Second

	// inboxSize bounds the frames queued between the socket reader and the
	// dispatcher.
	inboxSize = 256

	// writeWait bounds how long a single socket write may block. Without it
	// a dead peer with a full send buffer holds the write mutex for the TCP
	// retransmission timeout.
	writeWait = 10 * time.Second
)

// Endpoint describes the realtime connection target, normally obtained from
// api.Client.LiveSession.
type Endpoint struct {
	// URL is the wss:// chat endpoint returned by User.Login.
	URL string
	// SessionID authenticates the handshake.
	SessionID string
}

// Options configure a Session. The zero value is usable; zero fields take
// the Default* constants above.
type Options struct {
	// AckTimeout bounds how long an awaited send waits for its ack. A
	// per-call deadline on the context overrides it downward.
	AckTimeout time.Duration
	// AutoReconnect re-establishes the connection with exponential backoff
	// after an unexpected drop. Pending sends still fail with
	// ErrConnectionLost at the moment of the drop.
	AutoReconnect bool
	// BackoffInitial is the first reconnect delay; it doubles per failed
	// attempt up to BackoffMax.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// PingInterval is the keepalive probe period. Negative disables
	// keepalive probing entirely.
	PingInterval time.Duration
	// PingTimeout is how long a probe waits for its ack before the
	// connection is considered dead.
	PingTimeout time.Duration
	// Logger receives diagnostics (dropped frames, handler panics,
	// reconnect attempts). Defaults to log.Default().
	Logger *log.Logger
	// Dialer overrides the WebSocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = DefaultBackoffInitial
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.PingInterval == 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// liveConn bundles one physical connection with its frame inbox and stop
// signal. A reconnect replaces the whole bundle behind the same Session.
type liveConn struct {
	ws       *websocket.Conn
	inbox    chan protocol.Frame
	stop     chan struct{}
	stopOnce sync.Once

	// established is set once the handshake completed and the connection
	// was promoted to Session.cur. Guarded by Session.mu.
	established bool
}

func newLiveConn(ws *websocket.Conn) *liveConn {
	return &liveConn{
		ws:    ws,
		inbox: make(chan protocol.Frame, inboxSize),
		stop:  make(chan struct{}),
	}
}

func (lc *liveConn) closeStop() {
	lc.stopOnce.Do(func() { close(lc.stop) })
}

// Session is a live realtime session. Construct it with NewSession (or
// api.Client.LiveSession), register handlers, then call Start and RunForever.
//
// All methods are safe for concurrent use. Handlers run one at a time in
// wire order on a dedicated dispatcher goroutine; a handler may call Close or
// issue fire-and-forget sends, but a handler that needs to await an ack
// should do so from its own goroutine.
type Session struct {
	endpoint Endpoint
	opts     Options
	logger   *log.Logger

	pending  *pendingTracker
	registry *handlerRegistry

	mu    sync.Mutex
	state State
	cur   *liveConn
	err   error // terminal error surfaced by RunForever

	// writeMu serializes physical writes; concurrent senders each wait on
	// their own pending entry.
	writeMu sync.Mutex

	lossMu       sync.Mutex
	lossNextID   uint64
	lossHandlers []lossEntry

	done      chan struct{}
	closeOnce sync.Once
}

type lossEntry struct {
	id uint64
	fn func(error)
}

// NewSession creates a session for the given endpoint. It does not connect;
// call Start.
func NewSession(endpoint Endpoint, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		endpoint: endpoint,
		opts:     opts,
		logger:   opts.Logger,
		pending:  newPendingTracker(),
		registry: newHandlerRegistry(),
		done:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the socket, performs the handshake and begins dispatching
// inbound frames. It is valid only on a session that has never been started.
// It returns ErrAuthentication if the server rejects the credentials, or a
// wrapped transport error if the dial fails.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
		s.state = StateConnecting
	case StateClosing, StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return err
	}
	s.logger.Printf("[Realtime] session open (%s)", s.endpoint.URL)
	return nil
}

// connect dials the endpoint, starts the read and dispatch pumps, performs
// the auth handshake and, on success, promotes the connection to current and
// starts the keepalive loop.
func (s *Session) connect(ctx context.Context) error {
	conn, _, err := s.opts.Dialer.DialContext(ctx, s.endpoint.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.endpoint.URL, err)
	}

	lc := newLiveConn(conn)
	go s.readPump(lc)
	go s.dispatchLoop(lc)

	if _, err := s.sendFrame(ctx, lc, protocol.NewAuth(s.endpoint.SessionID), true, s.opts.AckTimeout); err != nil {
		conn.Close()
		var ackErr *AckError
		if errors.As(err, &ackErr) {
			return fmt.Errorf("%w: %s", ErrAuthentication, ackErr.Ack.Error)
		}
		return fmt.Errorf("handshake: %w", err)
	}

	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	lc.established = true
	s.cur = lc
	s.state = StateOpen
	s.mu.Unlock()

	if s.opts.PingInterval > 0 {
		go s.pingLoop(lc)
	}
	return nil
}

// Send writes a frame to the open session. When await is true it blocks
// until the server acknowledges the frame, the configured ack timeout
// elapses (ErrAckTimeout), or ctx is done. Fire-and-forget sends return
// (nil, nil) as soon as the frame is written. Send fails immediately with
// ErrNotConnected while the session is not open, including during a
// reconnect attempt.
func (s *Session) Send(ctx context.Context, frame protocol.Frame, await bool) (*protocol.Ack, error) {
	s.mu.Lock()
	if s.state != StateOpen || s.cur == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	lc := s.cur
	s.mu.Unlock()

	return s.sendFrame(ctx, lc, frame, await, s.opts.AckTimeout)
}

// SendChat sends a chat message to a chat JID and waits for the server to
// acknowledge it.
func (s *Session) SendChat(ctx context.Context, to, text string) error {
	_, err := s.Send(ctx, protocol.NewChatMessage(to, text), true)
	return err
}

// SetPresence broadcasts a new presence for this client, fire-and-forget.
// Presence is global, not per chat.
func (s *Session) SetPresence(presence string) error {
	_, err := s.Send(context.Background(), protocol.NewPresenceChange(presence), false)
	return err
}

// SendTyping shows the typing indicator in a chat, fire-and-forget. The
// server clears it after a few seconds; use StartTyping to keep it alive
// across a longer operation.
func (s *Session) SendTyping(to string) error {
	_, err := s.Send(context.Background(), protocol.NewUserTyping(to, protocol.TypingComposing), false)
	return err
}

// ClearTyping clears the typing indicator in a chat, fire-and-forget. Only
// works in private messages; elsewhere the indicator expires on its own.
func (s *Session) ClearTyping(to string) error {
	_, err := s.Send(context.Background(), protocol.NewUserTyping(to, protocol.TypingDone), false)
	return err
}

// sendFrame registers a pending entry (when awaiting), writes the frame under
// the write mutex, then waits for resolution. The pending entry is removed on
// every exit path so the tracker never leaks.
func (s *Session) sendFrame(ctx context.Context, lc *liveConn, frame protocol.Frame, await bool, timeout time.Duration) (*protocol.Ack, error) {
	var (
		id   string
		done <-chan ackResult
	)
	if await {
		c, ok := frame.(interface{ CorrelationID() string })
		if !ok || c.CorrelationID() == "" {
			return nil, fmt.Errorf("realtime: %s frame has no correlation id", frame.FrameType())
		}
		id = c.CorrelationID()

		var err error
		done, err = s.pending.register(id)
		if err != nil {
			return nil, err
		}
	}

	s.writeMu.Lock()
	lc.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := lc.ws.WriteJSON(frame)
	s.writeMu.Unlock()
	if err != nil {
		if await {
			s.pending.remove(id)
		}
		return nil, fmt.Errorf("write %s frame: %w", frame.FrameType(), err)
	}
	if !await {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.ack.Error != "" {
			return nil, &AckError{Ack: res.ack}
		}
		return res.ack, nil
	case <-timer.C:
		s.pending.remove(id)
		return nil, ErrAckTimeout
	case <-ctx.Done():
		s.pending.remove(id)
		return nil, ctx.Err()
	}
}

// readPump is the single reader for one connection. Acks are routed straight
// to the pending tracker; every other frame is queued for the dispatcher so
// socket reads stay independent of handler execution. Exactly one readPump
// runs per live connection.
func (s *Session) readPump(lc *liveConn) {
	var readErr error
	defer func() {
		lc.closeStop()
		close(lc.inbox)
		s.handleDisconnect(lc, readErr)
	}()

	for {
		msgType, data, err := lc.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		if msgType != websocket.TextMessage {
			s.logger.Printf("[Realtime] ignoring non-text frame (opcode %d)", msgType)
			continue
		}

		frame, err := protocol.ParseFrame(data)
		if err != nil {
			// A single bad frame must not tear down the connection.
			s.logger.Printf("[Realtime] dropping malformed frame: %v", err)
			continue
		}

		if ack, ok := frame.(*protocol.Ack); ok {
			if !s.pending.resolve(ack.ReplyTo, ack) {
				s.logger.Printf("[Realtime] ignoring ack for unknown frame %q", ack.ReplyTo)
			}
			continue
		}
		lc.inbox <- frame
	}
}

// dispatchLoop delivers queued frames to handlers one at a time, preserving
// wire order. It exits when the read pump closes the inbox.
func (s *Session) dispatchLoop(lc *liveConn) {
	for frame := range lc.inbox {
		s.registry.dispatch(frame, s.logger)
	}
}

// pingLoop probes the connection. A probe whose ack does not arrive within
// PingTimeout closes the socket, which funnels the drop through the read
// pump like any other connection loss.
func (s *Session) pingLoop(lc *liveConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lc.stop:
			return
		case <-ticker.C:
			if _, err := s.sendFrame(context.Background(), lc, protocol.NewPing(), true, s.opts.PingTimeout); err != nil {
				if errors.Is(err, ErrAckTimeout) {
					s.logger.Printf("[Realtime] keepalive probe timed out, dropping connection")
					lc.ws.Close()
				}
				return
			}
		}
	}
}

// handleDisconnect runs once per promoted connection when its read pump
// exits. Depending on state and policy it finishes an orderly close, starts
// the reconnect loop, or terminates the session.
func (s *Session) handleDisconnect(lc *liveConn, cause error) {
	s.mu.Lock()
	if !lc.established || s.cur != lc {
		// Handshake-phase or already-replaced connection; the caller that
		// owns the handshake does its own cleanup.
		s.mu.Unlock()
		return
	}
	s.cur = nil

	if s.state == StateClosing || s.state == StateClosed {
		s.state = StateClosed
		s.mu.Unlock()
		s.signalDone()
		return
	}

	reconnect := s.opts.AutoReconnect
	if reconnect {
		s.state = StateConnecting
	} else {
		s.state = StateClosed
		s.err = ErrConnectionLost
	}
	s.mu.Unlock()

	s.logger.Printf("[Realtime] connection lost: %v", cause)
	s.pending.failAll(ErrConnectionLost)
	s.notifyConnectionLoss(cause)

	if reconnect {
		go s.reconnectLoop()
	} else {
		s.signalDone()
	}
}

// reconnectLoop retries the dial-and-handshake sequence with exponential
// backoff until it succeeds, the session is closed, or the server rejects
// the credentials. No lock is held while sleeping; sends during this window
// fail fast with ErrNotConnected.
func (s *Session) reconnectLoop() {
	backoff := s.opts.BackoffInitial
	for {
		s.logger.Printf("[Realtime] reconnecting in %s", backoff)
		select {
		case <-s.done:
			return
		case <-time.After(backoff):
		}

		s.mu.Lock()
		if s.state != StateConnecting {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		err := s.connect(context.Background())
		if err == nil {
			s.logger.Printf("[Realtime] reconnected")
			return
		}
		if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrClosed) {
			s.mu.Lock()
			s.state = StateClosed
			if !errors.Is(err, ErrClosed) {
				s.err = err
			}
			s.mu.Unlock()
			s.logger.Printf("[Realtime] reconnect aborted: %v", err)
			s.signalDone()
			return
		}

		s.logger.Printf("[Realtime] reconnect failed: %v", err)
		backoff *= 2
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}
	}
}

// Close requests an orderly shutdown. It is idempotent and safe to call from
// inside a handler: it only signals and closes the socket, it never waits for
// the dispatcher that may have invoked it nor for an in-flight write to
// finish. Pending sends fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	lc := s.cur
	s.mu.Unlock()

	s.pending.failAll(ErrClosed)

	if lc != nil {
		// WriteControl is safe alongside data writes, so Close never takes
		// writeMu; a sender wedged mid-write cannot stall shutdown.
		lc.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		// The read pump observes the closed socket and finishes the
		// transition to StateClosed.
		lc.ws.Close()
	} else {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.signalDone()
	}
	return nil
}

// RunForever blocks until Close is called, the connection is lost without a
// reconnect policy, or ctx is cancelled. Cancellation resolves all pending
// sends and closes the session cleanly.
func (s *Session) RunForever(ctx context.Context) error {
	select {
	case <-s.done:
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		s.pending.failAll(ctx.Err())
		s.Close()
		return ctx.Err()
	}
}

func (s *Session) signalDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

// notifyConnectionLoss fires every registered loss handler exactly once for
// this drop. Handler panics are contained.
func (s *Session) notifyConnectionLoss(cause error) {
	s.lossMu.Lock()
	handlers := append([]lossEntry(nil), s.lossHandlers...)
	s.lossMu.Unlock()

	for _, entry := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Printf("[Realtime] connection-loss handler panicked: %v", rec)
				}
			}()
			entry.fn(cause)
		}()
	}
}
