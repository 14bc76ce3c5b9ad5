package agent

import "strings"

// isMentioned reports whether the room nick is addressed in body.
// Matches are case-insensitive: "@nick" anywhere, or a "nick:" /
// "nick " prefix.
func isMentioned(body, nick string) bool {
	if nick == "" {
		return false
	}
	lowBody := strings.ToLower(body)
	lowNick := strings.ToLower(nick)

	if strings.Contains(lowBody, "@"+lowNick) {
		return true
	}
	return strings.HasPrefix(lowBody, lowNick+":") || strings.HasPrefix(lowBody, lowNick+" ")
}

// stripMention removes the leading mention of nick from body so the
// LLM sees the question, not the addressing.
func stripMention(body, nick string) string {
	trimmed := strings.TrimSpace(body)
	lowTrimmed := strings.ToLower(trimmed)
	lowNick := strings.ToLower(nick)

	for _, prefix := range []string{"@" + lowNick + ":", "@" + lowNick, lowNick + ":", lowNick + " "} {
		if strings.HasPrefix(lowTrimmed, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return trimmed
}
