package xmpp

import (
	"strings"
	"testing"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"a & b", "a &amp; b"},
		{"<script>", "&lt;script&gt;"},
		{`quotes ' and "`, "quotes &apos; and &quot;"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	t.Run("client mode omits from", func(t *testing.T) {
		got := BuildMessage("", "user@host", "hello", "")
		want := "<message to='user@host' type='chat'><body>hello</body><active xmlns='http://jabber.org/protocol/chatstates'/></message>"
		if got != want {
			t.Errorf("got  %s\nwant %s", got, want)
		}
	})

	t.Run("component mode stamps from", func(t *testing.T) {
		got := BuildMessage("agent.host", "user@host", "hi", "m1")
		if !strings.Contains(got, " from='agent.host'") {
			t.Errorf("missing from attribute: %s", got)
		}
		if !strings.Contains(got, " id='m1'") {
			t.Errorf("missing id attribute: %s", got)
		}
	})

	t.Run("body is escaped", func(t *testing.T) {
		got := BuildMessage("", "u@h", "1 < 2 & 3 > 2", "")
		if !strings.Contains(got, "<body>1 &lt; 2 &amp; 3 &gt; 2</body>") {
			t.Errorf("body not escaped: %s", got)
		}
	})
}

func TestBuildChatState(t *testing.T) {
	got := BuildChatState("", "user@host", StateComposing, Chat)
	want := "<message to='user@host' type='chat'><composing xmlns='http://jabber.org/protocol/chatstates'/></message>"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	got = BuildChatState("agent.host", "room@conf", StatePaused, GroupChat)
	if !strings.Contains(got, "type='groupchat'") || !strings.Contains(got, "<paused") {
		t.Errorf("groupchat paused state wrong: %s", got)
	}
}

func TestBuildStreamOpens(t *testing.T) {
	comp := BuildStreamOpen("agent.localhost")
	if !strings.Contains(comp, "xmlns='jabber:component:accept'") {
		t.Errorf("component stream open missing namespace: %s", comp)
	}
	if strings.Contains(comp, "version=") {
		t.Errorf("component stream open must not carry version: %s", comp)
	}

	client := BuildClientStreamOpen("localhost")
	if !strings.Contains(client, "xmlns='jabber:client'") {
		t.Errorf("client stream open missing namespace: %s", client)
	}
	if !strings.Contains(client, "version='1.0'") {
		t.Errorf("client stream open missing version: %s", client)
	}
}

func TestHandshakeHash(t *testing.T) {
	// sha1("stream42" + "shhh")
	got := HandshakeHash("stream42", "shhh")
	want := "9522d2fea0e6bd51f3b4692d5120e0a8136c88be"
	if got != want {
		t.Errorf("HandshakeHash = %s, want %s", got, want)
	}
	if built := BuildHandshake(got); built != "<handshake>"+want+"</handshake>" {
		t.Errorf("BuildHandshake = %s", built)
	}
}

func TestBuildSASLAuthPlain(t *testing.T) {
	got := BuildSASLAuthPlain("bot", "secret")
	want := "<auth xmlns='urn:ietf:params:xml:ns:xmpp-sasl' mechanism='PLAIN'>AGJvdABzZWNyZXQ=</auth>"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestBuildBindRequest(t *testing.T) {
	got := BuildBindRequest("fluux-agent")
	want := "<iq type='set' id='bind1'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><resource>fluux-agent</resource></bind></iq>"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestBuildMUCJoin(t *testing.T) {
	got := BuildMUCJoin("lobby@conf.test", "bot", "")
	if !strings.Contains(got, "to='lobby@conf.test/bot'") {
		t.Errorf("join target wrong: %s", got)
	}
	// Zero history keeps the server from replaying backlog into memory.
	if !strings.Contains(got, "<history maxstanzas='0'/>") {
		t.Errorf("MUC join must request zero history: %s", got)
	}
}

func TestBuildMUCMessage(t *testing.T) {
	got := BuildMUCMessage("", "lobby@conf.test", "hello room")
	if !strings.Contains(got, "type='groupchat'") {
		t.Errorf("missing groupchat type: %s", got)
	}
	if !strings.Contains(got, "<body>hello room</body>") {
		t.Errorf("missing body: %s", got)
	}
}

func TestBuildPresences(t *testing.T) {
	if got := BuildInitialPresence(); got != "<presence/>" {
		t.Errorf("initial presence = %s", got)
	}
	if got := BuildSubscribe("a@b"); got != "<presence to='a@b' type='subscribe'/>" {
		t.Errorf("subscribe = %s", got)
	}
	if got := BuildSubscribed("a@b"); got != "<presence to='a@b' type='subscribed'/>" {
		t.Errorf("subscribed = %s", got)
	}
}

func TestBuildRosterGet(t *testing.T) {
	got := BuildRosterGet()
	if !strings.Contains(got, "jabber:iq:roster") || !strings.Contains(got, "id='roster1'") {
		t.Errorf("roster get = %s", got)
	}
}
