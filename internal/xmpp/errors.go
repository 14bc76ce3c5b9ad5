package xmpp

import "fmt"

// ErrorKind classifies connection failures for the reconnection
// supervisor. Only Transient errors are retried; everything else
// terminates the process.
type ErrorKind int

const (
	// KindTransient covers TCP/TLS failures, write errors, read
	// timeouts, stream EOF and XML parse errors. Retriable.
	KindTransient ErrorKind = iota

	// KindAuth means the credentials were rejected (SASL failure,
	// component handshake failure). Fatal.
	KindAuth

	// KindConfig means the setup cannot work as configured (no
	// STARTTLS, no supported SASL mechanism, invalid JID). Fatal.
	KindConfig

	// KindConflict means another client took over the session. Fatal,
	// to avoid a reconnect ping-pong between the two clients.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConfig:
		return "config"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

// Error is a classified XMPP connection error.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether the supervisor should attempt a reconnect.
func (e *Error) Retriable() bool { return e.Kind == KindTransient }

func transientErr(format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Err: fmt.Errorf(format, args...)}
}

func authErr(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Err: fmt.Errorf(format, args...)}
}

func configErr(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

// DisconnectReason tells the supervisor why a running session ended.
type DisconnectReason struct {
	// Conflict is set when the server closed the stream with a
	// conflict condition (session replaced by another client).
	Conflict bool

	// StreamCondition holds the RFC 6120 stream error condition when
	// the disconnect was caused by a stream error, or "" otherwise.
	StreamCondition string
}

// ConnectionLost is the zero DisconnectReason: the link dropped without
// a stream error (EOF, read timeout, write failure).
var ConnectionLost = DisconnectReason{}

func (r DisconnectReason) String() string {
	switch {
	case r.Conflict:
		return "conflict"
	case r.StreamCondition != "":
		return "stream error: " + r.StreamCondition
	default:
		return "connection lost"
	}
}
