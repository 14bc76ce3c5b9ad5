package xmpp

import "strings"

// Bare strips the /resource suffix from a JID, returning its bare form.
// Bare is idempotent; a JID without a resource is returned unchanged.
func Bare(jid string) string {
	if i := strings.Index(jid, "/"); i >= 0 {
		return jid[:i]
	}
	return jid
}

// Resource returns the resource part of a full JID, or "" if absent.
// For MUC occupants the resource is the participant's nickname.
func Resource(jid string) string {
	if i := strings.Index(jid, "/"); i >= 0 {
		return jid[i+1:]
	}
	return ""
}

// Domain returns the domain part of a JID.
func Domain(jid string) string {
	bare := Bare(jid)
	if i := strings.Index(bare, "@"); i >= 0 {
		return bare[i+1:]
	}
	return bare
}

// Localpart returns the part before the @, or "" for domain-only JIDs.
func Localpart(jid string) string {
	bare := Bare(jid)
	if i := strings.Index(bare, "@"); i >= 0 {
		return bare[:i]
	}
	return ""
}
