package xmpp

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// ClientOptions configures a C2S client connection (RFC 6120).
type ClientOptions struct {
	Host     string
	Port     int
	JID      string // bare JID, e.g. "bot@example.com"
	Password string
	Resource string

	// TLSVerify disables certificate verification when false, for
	// development servers with self-signed certificates.
	TLSVerify bool

	// AllowedJIDs are subscribed to after connecting when they are not
	// already in the roster. The wildcard "*" is skipped.
	AllowedJIDs []string

	// ReadTimeout is the keepalive read deadline for the established
	// connection. Zero disables it.
	ReadTimeout time.Duration

	Logger *slog.Logger
}

// DialClient connects as a regular XMPP user: STARTTLS, SASL
// (SCRAM-SHA-1 preferred, PLAIN fallback), resource binding, roster
// fetch, initial presence and subscription to allowed contacts. All
// phases are synchronous and strictly ordered; the returned Conn
// delivers EventConnected first.
func DialClient(o ClientOptions) (*Conn, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	at := strings.Index(o.JID, "@")
	if at <= 0 || at == len(o.JID)-1 {
		return nil, configErr("invalid JID (need user@domain): %q", o.JID)
	}
	username, domain := o.JID[:at], o.JID[at+1:]

	addr := net.JoinHostPort(o.Host, fmt.Sprint(o.Port))
	logger.Info("connecting to XMPP server", "addr", addr, "mode", "client", "jid", o.JID)

	sock, err := net.DialTimeout("tcp", addr, handshakeTimeout)
	if err != nil {
		return nil, transientErr("dial %s: %w", addr, err)
	}

	s := &streamIO{conn: sock}
	ok := false
	defer func() {
		if !ok {
			s.conn.Close()
		}
	}()

	// Phase 1: plaintext stream open and features.
	if err := s.send(BuildClientStreamOpen(domain)); err != nil {
		return nil, transientErr("send stream open: %w", err)
	}
	features, err := s.readUntil("</stream:features>")
	if err != nil {
		return nil, transientErr("read stream features: %w", err)
	}

	// Phase 2: STARTTLS. Plaintext authentication is never attempted.
	if !strings.Contains(features, "<starttls") {
		return nil, configErr("server does not advertise STARTTLS, refusing plaintext auth")
	}
	if err := s.send(BuildStartTLS()); err != nil {
		return nil, transientErr("send starttls: %w", err)
	}
	resp, err := s.readUntil("/>")
	if err != nil {
		return nil, transientErr("read starttls response: %w", err)
	}
	if !strings.Contains(resp, "<proceed") {
		return nil, transientErr("starttls refused: %s", resp)
	}
	if err := s.startTLS(domain, o.TLSVerify); err != nil {
		return nil, transientErr("tls handshake: %w", err)
	}
	logger.Info("TLS established", "verify", o.TLSVerify)

	// Phase 3: stream re-open over TLS; collect SASL mechanisms.
	s.resetTranscript()
	if err := s.send(BuildClientStreamOpen(domain)); err != nil {
		return nil, transientErr("send stream open: %w", err)
	}
	features, err = s.readUntil("</stream:features>")
	if err != nil {
		return nil, transientErr("read post-TLS features: %w", err)
	}

	// Phase 4: SASL.
	mechanisms := extractSASLMechanisms(features)
	logger.Debug("SASL mechanisms offered", "mechanisms", mechanisms)
	if err := authenticate(s, username, o.Password, mechanisms); err != nil {
		return nil, err
	}
	logger.Info("SASL authentication successful")

	// Phase 5: stream re-open after SASL.
	s.resetTranscript()
	if err := s.send(BuildClientStreamOpen(domain)); err != nil {
		return nil, transientErr("send stream open: %w", err)
	}
	if _, err := s.readUntil("</stream:features>"); err != nil {
		return nil, transientErr("read post-SASL features: %w", err)
	}

	// Phase 6: resource binding.
	if err := s.send(BuildBindRequest(o.Resource)); err != nil {
		return nil, transientErr("send bind request: %w", err)
	}
	resp, err = s.readUntil("</iq>")
	if err != nil {
		return nil, transientErr("read bind response: %w", err)
	}
	fullJID := extractElementText(resp, "jid")
	if fullJID == "" {
		return nil, transientErr("resource bind failed: %s", resp)
	}
	logger.Info("resource bound", "jid", fullJID)

	// Phase 7: roster fetch.
	if err := s.send(BuildRosterGet()); err != nil {
		return nil, transientErr("send roster get: %w", err)
	}
	resp, err = s.readUntil("</iq>")
	if err != nil {
		return nil, transientErr("read roster: %w", err)
	}
	roster := extractRosterJIDs(resp)
	logger.Info("roster fetched", "contacts", len(roster))

	// Phase 8: initial presence.
	if err := s.send(BuildInitialPresence()); err != nil {
		return nil, transientErr("send initial presence: %w", err)
	}

	// Phase 9: subscribe to allowed JIDs not already in the roster.
	subscribed := 0
	for _, jid := range o.AllowedJIDs {
		if jid == "*" {
			continue
		}
		if contains(roster, jid) {
			continue
		}
		if err := s.send(BuildSubscribe(jid)); err != nil {
			return nil, transientErr("send subscribe to %s: %w", jid, err)
		}
		subscribed++
	}
	if subscribed > 0 {
		logger.Info("sent presence subscriptions", "count", subscribed)
	}

	ok = true
	return newConn(s.conn, s.transcript.Bytes(), "", o.ReadTimeout, logger), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
