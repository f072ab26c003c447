package upstream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a single link instance. Transitions are
// monotonic within one instance; a fresh Link is created per connect attempt.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Events receives lifecycle callbacks for one Link. Callbacks are delivered
// in order from the link's run goroutine, except that closing a link that was
// never connected emits OnClose from the goroutine calling Close. OnClose is
// terminal and fires exactly once per link instance.
type Events interface {
	OnOpen(l *Link)
	OnMessage(l *Link, data []byte)
	OnClose(l *Link, code int, reason string)
	OnError(l *Link, err error)
}

// Options configures a Link.
type Options struct {
	URL         string
	UserAgent   string
	DialTimeout time.Duration
}

// Link owns one outbound WebSocket to the draft service. It relays received
// frames, sends frames in submission order through a single writer goroutine,
// and performs no reconnection of its own.
type Link struct {
	opts   Options
	events Events
	logger *logrus.Entry

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	intentional bool
	localCode   int
	localReason string
	localClosed bool

	sendCh    chan []byte
	closeOnce sync.Once
}

const sendBufferSize = 256

// NewLink creates an idle link. Connect must be called to dial.
func NewLink(opts Options, events Events, logger *logrus.Entry) *Link {
	return &Link{
		opts:   opts,
		events: events,
		logger: logger.WithField("upstream", opts.URL),
		state:  StateIdle,
		sendCh: make(chan []byte, sendBufferSize),
	}
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsOpen reports whether frames can currently be sent.
func (l *Link) IsOpen() bool {
	return l.State() == StateOpen
}

// Intentional reports whether a close was requested with the intentional flag.
func (l *Link) Intentional() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intentional
}

// URL returns the upstream address this link dials.
func (l *Link) URL() string {
	return l.opts.URL
}

// Connect dials the upstream. Idempotent: a link that is already connecting
// or open is left alone. All lifecycle events are emitted asynchronously from
// the link's own goroutine, never from the caller's stack.
func (l *Link) Connect() {
	l.mu.Lock()
	if l.state == StateConnecting || l.state == StateOpen {
		l.mu.Unlock()
		return
	}
	if l.state != StateIdle {
		l.mu.Unlock()
		return
	}
	l.state = StateConnecting
	l.mu.Unlock()

	go l.run()
}

// Send enqueues a text frame for transmission. Frames are written in
// submission order. Fails with ErrNotOpen unless the link is open.
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	if l.state != StateOpen {
		l.mu.Unlock()
		return ErrNotOpen
	}
	l.mu.Unlock()

	select {
	case l.sendCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears the link down. The intentional flag marks a close the room
// asked for, so the close handler knows not to treat it as a failure.
// OnClose is emitted (once) with the given code and reason: from the run
// goroutine once a dial has started, or directly from Close on an idle link.
func (l *Link) Close(code int, reason string, intentional bool) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	if intentional {
		l.intentional = true
	}
	l.localClosed = true
	l.localCode = code
	l.localReason = reason

	conn := l.conn
	prev := l.state
	if l.state == StateOpen || l.state == StateConnecting {
		l.state = StateClosing
	}
	l.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		_ = conn.Close()
	}

	// A link closed before its dial ever started never enters run(), so the
	// terminal event is emitted here instead.
	if prev == StateIdle {
		l.finish(code, reason, nil)
	}
}

// run dials and then pumps the socket until it dies. Once Connect has started
// it, it is the only goroutine that emits events, which is what makes delivery
// ordered and OnClose terminal.
func (l *Link) run() {
	dialer := &websocket.Dialer{
		HandshakeTimeout: l.opts.DialTimeout,
	}

	// The dial deliberately carries no Origin header: the whole point of the
	// proxy is that a server-side client is not subject to browser origin
	// rules. gorilla only sends Origin when asked, so none is set.
	header := http.Header{}
	header.Set("User-Agent", l.opts.UserAgent)
	header.Set("Accept-Encoding", "gzip, deflate, br")
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Cache-Control", "no-cache")
	header.Set("Pragma", "no-cache")

	conn, resp, err := dialer.Dial(l.opts.URL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		l.logger.WithError(err).Warn("Upstream dial failed")
		l.finish(0, "dial failed", err)
		return
	}

	l.mu.Lock()
	if l.localClosed {
		// Close raced the dial; the link never becomes open.
		code, reason := l.localCode, l.localReason
		l.mu.Unlock()
		_ = conn.Close()
		l.finish(code, reason, nil)
		return
	}
	l.conn = conn
	l.state = StateOpen
	l.mu.Unlock()

	l.logger.Debug("Upstream connection open")
	l.events.OnOpen(l)

	writerDone := make(chan struct{})
	go l.writeLoop(conn, writerDone)
	defer close(writerDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.handleReadError(err)
			return
		}
		l.events.OnMessage(l, data)
	}
}

// writeLoop drains the send queue onto the socket, preserving order.
func (l *Link) writeLoop(conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case data := <-l.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				l.logger.WithError(err).Warn("Upstream write failed")
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// handleReadError maps a dead socket onto the terminal close event. A close
// requested locally reports the locally recorded code and reason; a peer
// close reports the peer's; everything else is a runtime error.
func (l *Link) handleReadError(err error) {
	l.mu.Lock()
	localClosed := l.localClosed
	code, reason := l.localCode, l.localReason
	l.mu.Unlock()

	if localClosed {
		l.finish(code, reason, nil)
		return
	}

	if ce, ok := err.(*websocket.CloseError); ok {
		l.finish(ce.Code, ce.Text, nil)
		return
	}

	l.logger.WithError(err).Warn("Upstream read failed")
	l.finish(websocket.CloseAbnormalClosure, err.Error(), err)
}

// finish emits the terminal events exactly once and settles the state.
func (l *Link) finish(code int, reason string, cause error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = StateClosed
		conn := l.conn
		l.conn = nil
		l.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		if cause != nil {
			l.events.OnError(l, cause)
		}
		l.events.OnClose(l, code, reason)
	})
}
