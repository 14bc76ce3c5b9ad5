package xmpp

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
)

// handshakeTimeout bounds each read/write during the synchronous
// connection phases. Servers send the stream header and features as
// separate TCP segments, so reads accumulate until a marker appears.
const handshakeTimeout = 10 * time.Second

// streamIO wraps the socket during the synchronous handshake phases
// (stream open, STARTTLS, SASL, bind, roster). It records a transcript
// of everything read on the current stream so the incremental parser
// can be seeded with the stream-open element once the connection goes
// asynchronous.
type streamIO struct {
	conn       net.Conn
	transcript bytes.Buffer
}

func (s *streamIO) send(stanza string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(stanza))
	return err
}

// readUntil accumulates reads until any marker appears, returning the
// accumulated text. All bytes read are also appended to the stream
// transcript.
func (s *streamIO) readUntil(markers ...string) (string, error) {
	return s.readUntilFunc(func(acc string) bool {
		for _, m := range markers {
			if strings.Contains(acc, m) {
				return true
			}
		}
		return false
	})
}

func (s *streamIO) readUntilFunc(done func(string) bool) (string, error) {
	var acc strings.Builder
	buf := make([]byte, 8192)

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
			return "", err
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			s.transcript.Write(buf[:n])
		}
		if err != nil {
			return acc.String(), fmt.Errorf("read (accumulated %q): %w", acc.String(), err)
		}
		if done(acc.String()) {
			return acc.String(), nil
		}
	}
}

// resetTranscript discards the transcript. Called on stream restarts
// (after STARTTLS and after SASL success) so the parser only sees the
// final stream.
func (s *streamIO) resetTranscript() {
	s.transcript.Reset()
}

// startTLS upgrades the socket to TLS. verify=false accepts
// self-signed certificates on development servers.
func (s *streamIO) startTLS(serverName string, verify bool) error {
	tlsConn := tls.Client(s.conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: !verify, //nolint:gosec // explicit config opt-out
	})
	if err := tlsConn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		return err
	}
	s.conn = tlsConn
	return nil
}

// extractAttr pulls an attribute value out of raw XML during the
// handshake phases, accepting both quote styles. The incremental
// parser takes over once the connection is established.
func extractAttr(xmlText, attr string) string {
	for _, q := range []string{"'", `"`} {
		pat := attr + "=" + q
		start := strings.Index(xmlText, pat)
		if start < 0 {
			continue
		}
		rest := xmlText[start+len(pat):]
		end := strings.Index(rest, q)
		if end < 0 {
			continue
		}
		return rest[:end]
	}
	return ""
}

// extractElementText returns the text content of the first <tag>
// element in raw XML.
func extractElementText(xmlText, tag string) string {
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	start := strings.Index(xmlText, open)
	if start < 0 {
		return ""
	}
	rest := xmlText[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// extractRosterJIDs collects item JIDs from a roster result, skipping
// items with subscription='remove'.
func extractRosterJIDs(xmlText string) []string {
	var jids []string
	rest := xmlText
	for {
		start := strings.Index(rest, "<item")
		if start < 0 {
			break
		}
		rest = rest[start:]
		end := strings.Index(rest, ">")
		if end < 0 {
			break
		}
		item := rest[:end+1]
		rest = rest[end+1:]

		if extractAttr(item, "subscription") == "remove" {
			continue
		}
		if jid := extractAttr(item, "jid"); jid != "" {
			jids = append(jids, jid)
		}
	}
	return jids
}
