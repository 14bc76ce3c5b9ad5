package xmpp

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// ComponentOptions configures an external component connection
// (XEP-0114).
type ComponentOptions struct {
	Host   string
	Port   int
	Domain string
	Secret string

	// ReadTimeout is the keepalive read deadline for the established
	// connection. Zero disables it.
	ReadTimeout time.Duration

	Logger *slog.Logger
}

// DialComponent attaches to the server as an external component:
// TCP, component stream open, then the SHA-1 handshake over the
// stream id. On success the returned Conn delivers EventConnected
// first.
func DialComponent(o ComponentOptions) (*Conn, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := net.JoinHostPort(o.Host, fmt.Sprint(o.Port))
	logger.Info("connecting to XMPP server", "addr", addr, "mode", "component")

	sock, err := net.DialTimeout("tcp", addr, handshakeTimeout)
	if err != nil {
		return nil, transientErr("dial %s: %w", addr, err)
	}

	s := &streamIO{conn: sock}
	ok := false
	defer func() {
		if !ok {
			sock.Close()
		}
	}()

	if err := s.send(BuildStreamOpen(o.Domain)); err != nil {
		return nil, transientErr("send stream open: %w", err)
	}

	// The stream id arrives in the server's stream-open element; wait
	// until that element's closing '>' so the attribute is complete.
	resp, err := s.readUntilFunc(func(acc string) bool {
		i := strings.Index(acc, "<stream:stream")
		return i >= 0 && strings.Contains(acc[i:], ">")
	})
	if err != nil {
		return nil, transientErr("read stream open: %w", err)
	}

	streamID := extractAttr(resp, "id")
	if streamID == "" {
		return nil, transientErr("server stream open carries no id: %s", resp)
	}
	logger.Debug("component stream open", "stream_id", streamID)

	if err := s.send(BuildHandshake(HandshakeHash(streamID, o.Secret))); err != nil {
		return nil, transientErr("send handshake: %w", err)
	}

	resp, err = s.readUntil("<handshake", "</stream:stream>")
	if err != nil {
		return nil, transientErr("read handshake ack: %w", err)
	}
	if !strings.Contains(resp, "<handshake/>") && !strings.Contains(resp, "<handshake></handshake>") {
		return nil, authErr("component handshake rejected: %s", resp)
	}

	logger.Info("component handshake accepted", "domain", o.Domain)
	ok = true
	return newConn(s.conn, s.transcript.Bytes(), o.Domain, o.ReadTimeout, logger), nil
}
