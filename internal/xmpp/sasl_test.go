package xmpp

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestPlainPayload(t *testing.T) {
	got := plainPayload("bot", "secret")
	want := base64.StdEncoding.EncodeToString([]byte("\x00bot\x00secret"))
	if got != want {
		t.Errorf("plainPayload = %q, want %q", got, want)
	}
	if got != "AGJvdABzZWNyZXQ=" {
		t.Errorf("plainPayload = %q, want AGJvdABzZWNyZXQ=", got)
	}
}

// RFC 5802 section 5 test vector.
func TestSCRAMClientProofRFCVector(t *testing.T) {
	conv := newSCRAMWithNonce("user", "pencil", "fyko+d2lbbFgONRv9qkxdawL")

	first, err := base64.StdEncoding.DecodeString(conv.clientFirst())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "n,,n=user,r=fyko+d2lbbFgONRv9qkxdawL" {
		t.Errorf("client-first = %q", first)
	}

	serverFirst := "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
	challenge := base64.StdEncoding.EncodeToString([]byte(serverFirst))

	finalB64, err := conv.clientFinal(challenge)
	if err != nil {
		t.Fatal(err)
	}
	final, err := base64.StdEncoding.DecodeString(finalB64)
	if err != nil {
		t.Fatal(err)
	}

	want := "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts="
	if string(final) != want {
		t.Errorf("client-final:\ngot  %s\nwant %s", final, want)
	}
}

func TestSCRAMRejectsForeignNonce(t *testing.T) {
	conv := newSCRAMWithNonce("user", "pencil", "clientnonce")

	// Server nonce must extend the client nonce.
	serverFirst := "r=attacker-nonce,s=QSXCR+Q6sek8bf92,i=4096"
	challenge := base64.StdEncoding.EncodeToString([]byte(serverFirst))

	if _, err := conv.clientFinal(challenge); err == nil {
		t.Error("expected error for server nonce not extending client nonce")
	}
}

func TestSCRAMRandomNonceLength(t *testing.T) {
	conv, err := newSCRAM("user", "pw")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(conv.clientNonce)
	if err != nil {
		t.Fatalf("nonce is not base64: %v", err)
	}
	if len(raw) != 24 {
		t.Errorf("nonce length = %d bytes, want 24", len(raw))
	}
}

func TestParseServerFirst(t *testing.T) {
	nonce, salt, iters, err := parseServerFirst("r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(nonce, "fyko+d2lbbFgONRv9qkxdawL") {
		t.Errorf("nonce = %q", nonce)
	}
	if salt != "QSXCR+Q6sek8bf92" {
		t.Errorf("salt = %q", salt)
	}
	if iters != 4096 {
		t.Errorf("iterations = %d", iters)
	}

	if _, _, _, err := parseServerFirst("s=only-salt"); err == nil {
		t.Error("expected error for incomplete server-first")
	}
}

func TestExtractSASLMechanisms(t *testing.T) {
	features := "<stream:features><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>" +
		"<mechanism>SCRAM-SHA-1</mechanism><mechanism>PLAIN</mechanism>" +
		"</mechanisms></stream:features>"
	got := extractSASLMechanisms(features)
	if len(got) != 2 || got[0] != "SCRAM-SHA-1" || got[1] != "PLAIN" {
		t.Errorf("mechanisms = %v", got)
	}

	if got := extractSASLMechanisms("<stream:features/>"); len(got) != 0 {
		t.Errorf("expected no mechanisms, got %v", got)
	}
}

func TestExtractSASLChallenge(t *testing.T) {
	payload, ok := extractSASLChallenge("<challenge xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>cj1hYmM=</challenge>")
	if !ok || payload != "cj1hYmM=" {
		t.Errorf("challenge = %q ok=%v", payload, ok)
	}

	if _, ok := extractSASLChallenge("<success/>"); ok {
		t.Error("success element must not parse as challenge")
	}
}

func TestExtractRosterJIDs(t *testing.T) {
	roster := "<iq type='result' id='roster1'><query xmlns='jabber:iq:roster'>" +
		"<item jid='alice@localhost' subscription='both'/>" +
		"<item jid='gone@localhost' subscription='remove'/>" +
		"<item jid=\"bob@localhost\" subscription=\"to\"/>" +
		"</query></iq>"
	got := extractRosterJIDs(roster)
	if len(got) != 2 || got[0] != "alice@localhost" || got[1] != "bob@localhost" {
		t.Errorf("roster jids = %v (removed items must be skipped)", got)
	}
}

func TestExtractAttr(t *testing.T) {
	xmlText := "<stream:stream id='abc123' from=\"localhost\">"
	if got := extractAttr(xmlText, "id"); got != "abc123" {
		t.Errorf("id = %q", got)
	}
	if got := extractAttr(xmlText, "from"); got != "localhost" {
		t.Errorf("from = %q", got)
	}
	if got := extractAttr(xmlText, "missing"); got != "" {
		t.Errorf("missing = %q, want empty", got)
	}
}
