package xmpp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// plainPayload builds the PLAIN payload (RFC 4616):
// base64("\0username\0password").
func plainPayload(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
}

// scramConversation holds the client side of a SCRAM-SHA-1 exchange
// (RFC 5802). The nonce is injectable for tests; production code uses
// newSCRAM which generates 24 random bytes.
type scramConversation struct {
	username        string
	password        string
	clientNonce     string
	clientFirstBare string
}

func newSCRAM(username, password string) (*scramConversation, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return newSCRAMWithNonce(username, password, base64.StdEncoding.EncodeToString(raw)), nil
}

func newSCRAMWithNonce(username, password, nonce string) *scramConversation {
	return &scramConversation{
		username:        username,
		password:        password,
		clientNonce:     nonce,
		clientFirstBare: fmt.Sprintf("n=%s,r=%s", username, nonce),
	}
}

// clientFirst returns the base64 client-first message ("n,," + bare).
func (s *scramConversation) clientFirst() string {
	return base64.StdEncoding.EncodeToString([]byte("n,," + s.clientFirstBare))
}

// clientFinal consumes the base64 server-first challenge and returns
// the base64 client-final message carrying the proof.
func (s *scramConversation) clientFinal(challengeB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(challengeB64))
	if err != nil {
		return "", fmt.Errorf("decode challenge: %w", err)
	}
	serverFirst := string(raw)

	combinedNonce, saltB64, iterations, err := parseServerFirst(serverFirst)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(combinedNonce, s.clientNonce) {
		return "", fmt.Errorf("server nonce does not extend client nonce")
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	saltedPassword := pbkdf2.Key([]byte(s.password), salt, iterations, sha1.Size, sha1.New)
	clientKey := hmacSHA1(saltedPassword, []byte("Client Key"))
	storedKey := sha1.Sum(clientKey)

	// "biws" = base64("n,,"), the GS2 header echo.
	withoutProof := "c=biws,r=" + combinedNonce
	authMessage := s.clientFirstBare + "," + serverFirst + "," + withoutProof

	clientSignature := hmacSHA1(storedKey[:], []byte(authMessage))
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	final := withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
	return base64.StdEncoding.EncodeToString([]byte(final)), nil
}

func hmacSHA1(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// parseServerFirst splits "r=nonce,s=salt,i=iterations".
func parseServerFirst(msg string) (nonce, salt string, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt = part[2:]
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", "", 0, fmt.Errorf("bad iteration count %q: %w", part[2:], err)
			}
		}
	}
	if nonce == "" || salt == "" || iterations == 0 {
		return "", "", 0, fmt.Errorf("malformed server-first message %q", msg)
	}
	return nonce, salt, iterations, nil
}

// extractSASLMechanisms pulls mechanism names out of a raw stream
// features blob during the synchronous handshake phase.
func extractSASLMechanisms(features string) []string {
	var mechs []string
	rest := features
	for {
		start := strings.Index(rest, "<mechanism>")
		if start < 0 {
			break
		}
		rest = rest[start+len("<mechanism>"):]
		end := strings.Index(rest, "</mechanism>")
		if end < 0 {
			break
		}
		mechs = append(mechs, rest[:end])
		rest = rest[end:]
	}
	return mechs
}

// extractSASLChallenge pulls the base64 payload from a <challenge>
// element in the raw SASL exchange.
func extractSASLChallenge(data string) (string, bool) {
	start := strings.Index(data, "<challenge")
	if start < 0 {
		return "", false
	}
	rest := data[start:]
	open := strings.Index(rest, ">")
	if open < 0 {
		return "", false
	}
	rest = rest[open+1:]
	end := strings.Index(rest, "</challenge>")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// authenticate runs SASL over the synchronous stream phase, preferring
// SCRAM-SHA-1 and falling back to PLAIN. Failures are Auth errors;
// an empty mechanism intersection is a Config error.
func authenticate(s *streamIO, username, password string, mechanisms []string) error {
	has := func(name string) bool {
		for _, m := range mechanisms {
			if m == name {
				return true
			}
		}
		return false
	}

	switch {
	case has("SCRAM-SHA-1"):
		return authenticateSCRAM(s, username, password)
	case has("PLAIN"):
		return authenticatePlain(s, username, password)
	default:
		return configErr("no supported SASL mechanism (need SCRAM-SHA-1 or PLAIN, server offers %v)", mechanisms)
	}
}

func authenticatePlain(s *streamIO, username, password string) error {
	if err := s.send(BuildSASLAuthPlain(username, password)); err != nil {
		return transientErr("send SASL PLAIN: %w", err)
	}

	resp, err := s.readUntil("</challenge>", "<success", "<failure")
	if err != nil {
		return transientErr("read SASL response: %w", err)
	}
	if !strings.Contains(resp, "<success") {
		return authErr("SASL PLAIN rejected: %s", resp)
	}
	return nil
}

func authenticateSCRAM(s *streamIO, username, password string) error {
	conv, err := newSCRAM(username, password)
	if err != nil {
		return transientErr("scram: %w", err)
	}

	if err := s.send(BuildSASLAuthSCRAM(conv.clientFirst())); err != nil {
		return transientErr("send SCRAM client-first: %w", err)
	}

	resp, err := s.readUntil("</challenge>", "<failure")
	if err != nil {
		return transientErr("read SCRAM challenge: %w", err)
	}
	challenge, ok := extractSASLChallenge(resp)
	if !ok {
		return authErr("expected SASL challenge, got: %s", resp)
	}

	final, err := conv.clientFinal(challenge)
	if err != nil {
		return authErr("scram: %v", err)
	}
	if err := s.send(BuildSASLResponse(final)); err != nil {
		return transientErr("send SCRAM client-final: %w", err)
	}

	resp, err = s.readUntil("<success", "<failure")
	if err != nil {
		return transientErr("read SCRAM result: %w", err)
	}
	if !strings.Contains(resp, "<success") {
		return authErr("SCRAM-SHA-1 rejected: %s", resp)
	}
	return nil
}
