package xmpp

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// channelCapacity bounds the inbound event and outbound command
// channels. A slow LLM call queues inbound events rather than dropping
// them; producers block once the window fills.
const channelCapacity = 100

// EventKind identifies an inbound event delivered to the runtime.
type EventKind int

const (
	// EventConnected fires once after the handshake completes.
	EventConnected EventKind = iota

	EventMessage
	EventPresence
	EventReaction

	// EventStreamError carries an RFC 6120 stream error condition.
	// The connection terminates right after delivering it.
	EventStreamError

	// EventError reports a read failure (EOF, timeout, parse error).
	// The connection terminates right after delivering it.
	EventError
)

// Event is an inbound event from the connection's reader.
type Event struct {
	Kind      EventKind
	Message   *InboundMessage
	Presence  *InboundPresence
	Reaction  *InboundReaction
	Condition string // EventStreamError
	Err       string // EventError
}

// CommandKind identifies an outbound command.
type CommandKind int

const (
	CmdSendMessage CommandKind = iota
	CmdSendMucMessage
	CmdSendChatState
	CmdJoinMuc
	CmdSendRaw
	CmdPing
)

// Command is an outbound instruction for the connection's writer.
// Commands are written to the socket in arrival order.
type Command struct {
	Kind CommandKind

	To   string
	Body string
	ID   string

	State   ChatState   // CmdSendChatState
	MsgType MessageType // CmdSendChatState

	Room string // CmdJoinMuc
	Nick string // CmdJoinMuc

	Raw string // CmdSendRaw: preformatted XML
}

// Conn is a live XMPP connection in either attachment mode. It owns
// the socket and the XML tokenizer; the runtime talks to it through
// the Events and Send channel interfaces.
type Conn struct {
	conn        net.Conn
	events      chan Event
	commands    chan Command
	from        string // component JID for outbound stanzas, "" in client mode
	readTimeout time.Duration
	logger      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// newConn wires the reader and writer goroutines over an established
// socket. preamble holds the handshake transcript of the current
// stream (starting at its stream-open element) so the parser can
// establish stream depth before live bytes arrive.
func newConn(sock net.Conn, preamble []byte, from string, readTimeout time.Duration, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		conn:        sock,
		events:      make(chan Event, channelCapacity),
		commands:    make(chan Command, channelCapacity),
		from:        from,
		readTimeout: readTimeout,
		logger:      logger,
	}
	c.done = make(chan struct{})

	c.events <- Event{Kind: EventConnected}

	go c.readLoop(preamble)
	go c.writeLoop()
	return c
}

// Events returns the inbound event channel. It is closed when the
// connection dies; a closed channel means the connection was lost.
func (c *Conn) Events() <-chan Event { return c.events }

// Send enqueues an outbound command. It reports false when the
// connection is gone and the command could not be enqueued.
func (c *Conn) Send(cmd Command) bool {
	select {
	case c.commands <- cmd:
		return true
	case <-c.done:
		return false
	}
}

// Close tears the connection down. Reader and writer terminate
// together; closing either half kills the other.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// emit delivers an event unless the connection is already closed.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Conn) readLoop(preamble []byte) {
	defer close(c.events)
	defer c.Close()

	var src io.Reader = &deadlineReader{conn: c.conn, timeout: c.readTimeout}
	if len(preamble) > 0 {
		src = io.MultiReader(bytes.NewReader(preamble), src)
	}
	parser := NewParser(src)

	for {
		stanza, err := parser.Next()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logger.Warn("xmpp read timeout", "timeout", c.readTimeout)
				c.emit(Event{Kind: EventError, Err: "Read timeout: no data from server"})
			case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
				c.logger.Warn("xmpp connection closed by server")
				c.emit(Event{Kind: EventError, Err: "Connection closed"})
			default:
				c.logger.Warn("xmpp read error", "error", err)
				c.emit(Event{Kind: EventError, Err: err.Error()})
			}
			return
		}

		switch stanza.Kind {
		case StanzaMessage:
			c.logger.Debug("message received", "from", stanza.Message.From, "type", stanza.Message.Type.String())
			c.emit(Event{Kind: EventMessage, Message: stanza.Message})
		case StanzaPresence:
			c.emit(Event{Kind: EventPresence, Presence: stanza.Presence})
		case StanzaReaction:
			c.emit(Event{Kind: EventReaction, Reaction: stanza.Reaction})
		case StanzaStreamError:
			c.logger.Warn("stream error from server", "condition", stanza.Condition)
			c.emit(Event{Kind: EventStreamError, Condition: stanza.Condition})
			return
		case StanzaStreamLevel, StanzaIgnored:
			// Nothing to deliver.
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.commands:
			payload := c.materialize(cmd)
			if err := c.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout)); err != nil {
				c.logger.Warn("xmpp set write deadline", "error", err)
				return
			}
			if _, err := c.conn.Write(payload); err != nil {
				c.logger.Warn("xmpp write failed", "error", err)
				return
			}
		}
	}
}

// materialize renders a command to wire bytes. The keepalive ping is
// exactly one space (0x20), written raw; some servers treat any other
// stray bytes between stanzas as a protocol violation.
func (c *Conn) materialize(cmd Command) []byte {
	switch cmd.Kind {
	case CmdPing:
		return []byte{' '}
	case CmdSendMessage:
		return []byte(BuildMessage(c.from, cmd.To, cmd.Body, cmd.ID))
	case CmdSendMucMessage:
		return []byte(BuildMUCMessage(c.from, cmd.To, cmd.Body))
	case CmdSendChatState:
		return []byte(BuildChatState(c.from, cmd.To, cmd.State, cmd.MsgType))
	case CmdJoinMuc:
		return []byte(BuildMUCJoin(cmd.Room, cmd.Nick, c.from))
	case CmdSendRaw:
		return []byte(cmd.Raw)
	default:
		return nil
	}
}

// deadlineReader applies the keepalive read timeout to every read.
// A zero timeout disables deadlines.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	} else if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}
