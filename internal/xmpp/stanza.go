// Package xmpp implements the subset of XMPP the agent needs: stanza
// building and incremental parsing, SASL (PLAIN and SCRAM-SHA-1), and
// the two connection styles — external component (XEP-0114) and C2S
// client (RFC 6120 with STARTTLS, SASL and resource binding).
package xmpp

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Namespaces used by the stanza builders and parser.
const (
	nsStream     = "http://etherx.jabber.org/streams"
	nsClient     = "jabber:client"
	nsComponent  = "jabber:component:accept"
	nsTLS        = "urn:ietf:params:xml:ns:xmpp-tls"
	nsSASL       = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsBind       = "urn:ietf:params:xml:ns:xmpp-bind"
	nsRoster     = "jabber:iq:roster"
	nsChatStates = "http://jabber.org/protocol/chatstates"
	nsMUC        = "http://jabber.org/protocol/muc"
	nsOOB        = "jabber:x:oob"
	nsReactions  = "urn:xmpp:reactions:0"
)

// MessageType distinguishes 1:1 chat from MUC groupchat.
type MessageType int

const (
	Chat MessageType = iota
	GroupChat
)

func (t MessageType) String() string {
	if t == GroupChat {
		return "groupchat"
	}
	return "chat"
}

// ChatState is an XEP-0085 typing notification state.
type ChatState int

const (
	StateComposing ChatState = iota
	StatePaused
)

func (s ChatState) String() string {
	if s == StatePaused {
		return "paused"
	}
	return "composing"
}

// PresenceKind is the type attribute of an incoming presence stanza.
type PresenceKind int

const (
	PresenceAvailable PresenceKind = iota
	PresenceUnavailable
	PresenceSubscribe
	PresenceSubscribed
	PresenceUnsubscribe
	PresenceUnsubscribed
)

func (k PresenceKind) String() string {
	switch k {
	case PresenceUnavailable:
		return "unavailable"
	case PresenceSubscribe:
		return "subscribe"
	case PresenceSubscribed:
		return "subscribed"
	case PresenceUnsubscribe:
		return "unsubscribe"
	case PresenceUnsubscribed:
		return "unsubscribed"
	default:
		return "available"
	}
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// Escape replaces the five XML metacharacters so arbitrary text can be
// embedded in attribute values and element content.
func Escape(s string) string {
	return xmlEscaper.Replace(s)
}

func fromAttr(from string) string {
	if from == "" {
		return ""
	}
	return " from='" + Escape(from) + "'"
}

// BuildMessage builds an outgoing 1:1 chat message. from is the
// component JID in component mode and "" in client mode, where the
// server stamps the sender. A trailing <active/> chat state (XEP-0085)
// signals we have stopped typing.
func BuildMessage(from, to, body, id string) string {
	idAttr := ""
	if id != "" {
		idAttr = " id='" + Escape(id) + "'"
	}
	return fmt.Sprintf("<message%s to='%s' type='chat'%s><body>%s</body><active xmlns='%s'/></message>",
		fromAttr(from), Escape(to), idAttr, Escape(body), nsChatStates)
}

// BuildMUCMessage builds a groupchat message for a MUC room (XEP-0045).
func BuildMUCMessage(from, to, body string) string {
	return fmt.Sprintf("<message%s to='%s' type='groupchat'><body>%s</body><active xmlns='%s'/></message>",
		fromAttr(from), Escape(to), Escape(body), nsChatStates)
}

// BuildChatState builds a standalone chat state notification
// (XEP-0085). Composing is sent when the LLM call begins, paused when
// it fails without producing a reply.
func BuildChatState(from, to string, state ChatState, msgType MessageType) string {
	return fmt.Sprintf("<message%s to='%s' type='%s'><%s xmlns='%s'/></message>",
		fromAttr(from), Escape(to), msgType, state, nsChatStates)
}

// BuildStreamOpen builds the stream opening for the component protocol
// (XEP-0114).
func BuildStreamOpen(domain string) string {
	return fmt.Sprintf("<?xml version='1.0'?><stream:stream xmlns='%s' xmlns:stream='%s' to='%s'>",
		nsComponent, nsStream, Escape(domain))
}

// BuildClientStreamOpen builds the stream opening for the C2S protocol.
func BuildClientStreamOpen(domain string) string {
	return fmt.Sprintf("<?xml version='1.0'?><stream:stream xmlns='%s' xmlns:stream='%s' to='%s' version='1.0'>",
		nsClient, nsStream, Escape(domain))
}

// HandshakeHash computes the XEP-0114 handshake value:
// hex(sha1(streamID || secret)).
func HandshakeHash(streamID, secret string) string {
	sum := sha1.Sum([]byte(streamID + secret))
	return hex.EncodeToString(sum[:])
}

// BuildHandshake builds the component handshake element.
func BuildHandshake(hash string) string {
	return "<handshake>" + hash + "</handshake>"
}

// BuildStartTLS builds the STARTTLS initiation element.
func BuildStartTLS() string {
	return "<starttls xmlns='" + nsTLS + "'/>"
}

// BuildSASLAuthPlain builds a PLAIN <auth> element. The payload is
// base64("\0username\0password").
func BuildSASLAuthPlain(username, password string) string {
	return fmt.Sprintf("<auth xmlns='%s' mechanism='PLAIN'>%s</auth>", nsSASL, plainPayload(username, password))
}

// BuildSASLAuthSCRAM builds a SCRAM-SHA-1 <auth> element carrying the
// base64 client-first message.
func BuildSASLAuthSCRAM(initialB64 string) string {
	return fmt.Sprintf("<auth xmlns='%s' mechanism='SCRAM-SHA-1'>%s</auth>", nsSASL, initialB64)
}

// BuildSASLResponse builds a SASL <response> element.
func BuildSASLResponse(payloadB64 string) string {
	return fmt.Sprintf("<response xmlns='%s'>%s</response>", nsSASL, payloadB64)
}

// BuildBindRequest builds the resource binding IQ.
func BuildBindRequest(resource string) string {
	return fmt.Sprintf("<iq type='set' id='bind1'><bind xmlns='%s'><resource>%s</resource></bind></iq>",
		nsBind, Escape(resource))
}

// BuildRosterGet builds the roster query IQ (RFC 6121).
func BuildRosterGet() string {
	return "<iq type='get' id='roster1'><query xmlns='" + nsRoster + "'/></iq>"
}

// BuildInitialPresence builds the initial available presence.
func BuildInitialPresence() string {
	return "<presence/>"
}

// BuildSubscribe asks to see the contact's presence.
func BuildSubscribe(to string) string {
	return "<presence to='" + Escape(to) + "' type='subscribe'/>"
}

// BuildSubscribed accepts an incoming subscription request.
func BuildSubscribed(to string) string {
	return "<presence to='" + Escape(to) + "' type='subscribed'/>"
}

// BuildMUCJoin builds a MUC join presence (XEP-0045). Zero history is
// requested because messages are persisted locally; without it the
// server replays backlog on every reconnect, duplicating entries in
// the memory store.
func BuildMUCJoin(roomJID, nick, from string) string {
	return fmt.Sprintf("<presence%s to='%s/%s'><x xmlns='%s'><history maxstanzas='0'/></x></presence>",
		fromAttr(from), Escape(roomJID), Escape(nick), nsMUC)
}
