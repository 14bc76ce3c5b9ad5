package xmpp

import (
	"encoding/xml"
	"io"
	"strings"
)

// OOB is an out-of-band attachment reference (XEP-0066).
type OOB struct {
	URL  string
	Desc string
}

// InboundMessage is a parsed incoming message stanza carrying a body
// and/or OOB attachments.
type InboundMessage struct {
	From string // full JID
	To   string
	Body string // trimmed
	ID   string
	Type MessageType
	OOB  []OOB
}

// InboundPresence is a parsed incoming presence stanza.
type InboundPresence struct {
	From string
	Kind PresenceKind
}

// InboundReaction is a parsed emoji reaction (urn:xmpp:reactions:0).
type InboundReaction struct {
	From      string
	MessageID string
	Emojis    []string
	Type      MessageType
}

// StanzaKind identifies what a finalized stanza turned out to be.
type StanzaKind int

const (
	// StanzaIgnored is anything the agent does not act on: iq results,
	// chat-state-only messages, stanzas without a from attribute.
	StanzaIgnored StanzaKind = iota

	// StanzaStreamLevel marks the stream open or close element itself.
	StanzaStreamLevel

	StanzaMessage
	StanzaPresence
	StanzaReaction
	StanzaStreamError
)

// Stanza is the parser's output. Exactly one payload field matching
// Kind is set.
type Stanza struct {
	Kind      StanzaKind
	Message   *InboundMessage
	Presence  *InboundPresence
	Reaction  *InboundReaction
	Condition string // StanzaStreamError
}

// RFC 6120 stream error conditions. Anything else maps to "unknown".
var streamErrorConditions = map[string]bool{
	"bad-format": true, "bad-namespace-prefix": true, "conflict": true,
	"connection-timeout": true, "host-gone": true, "host-unknown": true,
	"improper-addressing": true, "internal-server-error": true,
	"invalid-from": true, "invalid-namespace": true, "invalid-xml": true,
	"not-authorized": true, "not-well-formed": true, "policy-violation": true,
	"remote-connection-failed": true, "reset": true, "resource-constraint": true,
	"restricted-xml": true, "see-other-host": true, "system-shutdown": true,
	"undefined-condition": true, "unsupported-encoding": true,
	"unsupported-feature": true, "unsupported-stanza-type": true,
	"unsupported-version": true,
}

var chatStateNames = map[string]bool{
	"composing": true, "paused": true, "active": true, "inactive": true, "gone": true,
}

// element is a partially built XML subtree inside the current stanza.
type element struct {
	name     xml.Name
	attrs    []xml.Attr
	text     strings.Builder
	children []*element
}

func (e *element) attr(name string) string {
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (e *element) child(local string) *element {
	for _, c := range e.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

type parserState int

const (
	stateIdle parserState = iota
	stateInStanza
)

// Parser incrementally assembles stanzas from the indefinitely growing
// XML document that is an XMPP stream. It is fed by the tokenizer of
// encoding/xml and never buffers raw bytes itself, so partial reads
// and back-pressure are handled by the underlying reader.
//
// Each connection gets a fresh Parser; no state survives a reconnect.
type Parser struct {
	dec         *xml.Decoder
	state       parserState
	depth       int
	streamDepth int
	streamAttrs []xml.Attr
	root        *element
	stack       []*element
}

// NewParser creates a parser reading the stream from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{dec: xml.NewDecoder(r)}
}

// StreamID returns the id attribute of the last stream open element,
// or "" before the stream has opened.
func (p *Parser) StreamID() string {
	for _, a := range p.streamAttrs {
		if a.Name.Local == "id" {
			return a.Value
		}
	}
	return ""
}

// Next pulls tokens until a stanza (or stream-level element) completes.
// Tokenizer errors are fatal to the connection; the caller surfaces
// them as transient so the supervisor reconnects.
func (p *Parser) Next() (*Stanza, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case p.state == stateIdle && p.depth == 0 &&
				(t.Name.Local == "stream" || t.Name.Space == nsStream):
				// Stream open: stanzas live one level below it.
				p.depth++
				p.streamDepth = 1
				p.streamAttrs = append([]xml.Attr(nil), t.Attr...)
				return &Stanza{Kind: StanzaStreamLevel}, nil

			case p.state == stateIdle && p.depth == p.streamDepth:
				p.state = stateInStanza
				p.root = &element{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
				p.depth++

			case p.state == stateInStanza:
				p.stack = append(p.stack, &element{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)})
				p.depth++

			default:
				// Unexpected nesting; keep the depth balanced.
				p.depth++
			}

		case xml.EndElement:
			p.depth--
			switch {
			case p.state == stateInStanza && p.depth == p.streamDepth:
				st := finalize(p.root)
				p.root = nil
				p.stack = p.stack[:0]
				p.state = stateIdle
				return st, nil

			case p.state == stateInStanza && len(p.stack) > 0:
				el := p.stack[len(p.stack)-1]
				p.stack = p.stack[:len(p.stack)-1]
				if len(p.stack) > 0 {
					parent := p.stack[len(p.stack)-1]
					parent.children = append(parent.children, el)
				} else {
					p.root.children = append(p.root.children, el)
				}

			case p.depth == 0:
				// Stream close.
				return &Stanza{Kind: StanzaStreamLevel}, nil
			}

		case xml.CharData:
			if p.state == stateInStanza {
				if len(p.stack) > 0 {
					p.stack[len(p.stack)-1].text.Write(t)
				} else {
					p.root.text.Write(t)
				}
			}
		}
	}
}

// finalize turns a completed top-level element into a typed stanza.
func finalize(root *element) *Stanza {
	switch {
	case root.name.Local == "message":
		return finalizeMessage(root)
	case root.name.Local == "presence":
		return finalizePresence(root)
	case root.name.Local == "error" && root.name.Space == nsStream:
		return finalizeStreamError(root)
	default:
		// iq, stream management acks, anything else.
		return &Stanza{Kind: StanzaIgnored}
	}
}

func finalizeMessage(root *element) *Stanza {
	from := root.attr("from")
	if from == "" {
		return &Stanza{Kind: StanzaIgnored}
	}

	msgType := Chat
	if root.attr("type") == "groupchat" {
		msgType = GroupChat
	}

	body := ""
	if b := root.child("body"); b != nil {
		body = strings.TrimSpace(b.text.String())
	}

	// Reactions take precedence: a reaction stanza never doubles as a
	// message.
	for _, c := range root.children {
		if c.name.Space != nsReactions {
			continue
		}
		var emojis []string
		for _, r := range c.children {
			if r.name.Local == "reaction" {
				emojis = append(emojis, r.text.String())
			}
		}
		return &Stanza{Kind: StanzaReaction, Reaction: &InboundReaction{
			From:      from,
			MessageID: c.attr("id"),
			Emojis:    emojis,
			Type:      msgType,
		}}
	}

	// Chat-state-only notifications carry no content.
	if body == "" {
		for _, c := range root.children {
			if chatStateNames[c.name.Local] {
				return &Stanza{Kind: StanzaIgnored}
			}
		}
	}

	var oob []OOB
	for _, c := range root.children {
		if c.name.Local != "x" || c.name.Space != nsOOB {
			continue
		}
		u := c.child("url")
		if u == nil {
			continue
		}
		url := strings.TrimSpace(u.text.String())
		if url == "" {
			continue
		}
		desc := ""
		if d := c.child("desc"); d != nil {
			desc = strings.TrimSpace(d.text.String())
		}
		oob = append(oob, OOB{URL: url, Desc: desc})
	}

	// HTTP Upload clients duplicate the URL as the body; drop the
	// redundant text so only the attachment remains.
	if len(oob) > 0 && body != "" {
		allMatch := true
		for _, o := range oob {
			if o.URL != body {
				allMatch = false
				break
			}
		}
		if allMatch {
			body = ""
		}
	}

	if body == "" && len(oob) == 0 {
		return &Stanza{Kind: StanzaIgnored}
	}

	return &Stanza{Kind: StanzaMessage, Message: &InboundMessage{
		From: from,
		To:   root.attr("to"),
		Body: body,
		ID:   root.attr("id"),
		Type: msgType,
		OOB:  oob,
	}}
}

func finalizePresence(root *element) *Stanza {
	from := root.attr("from")
	if from == "" {
		return &Stanza{Kind: StanzaIgnored}
	}

	kind := PresenceAvailable
	switch root.attr("type") {
	case "unavailable":
		kind = PresenceUnavailable
	case "subscribe":
		kind = PresenceSubscribe
	case "subscribed":
		kind = PresenceSubscribed
	case "unsubscribe":
		kind = PresenceUnsubscribe
	case "unsubscribed":
		kind = PresenceUnsubscribed
	}

	return &Stanza{Kind: StanzaPresence, Presence: &InboundPresence{From: from, Kind: kind}}
}

func finalizeStreamError(root *element) *Stanza {
	for _, c := range root.children {
		if streamErrorConditions[c.name.Local] {
			return &Stanza{Kind: StanzaStreamError, Condition: c.name.Local}
		}
	}
	return &Stanza{Kind: StanzaStreamError, Condition: "unknown"}
}
