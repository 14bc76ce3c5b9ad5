package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/processone/fluux-agent-sub000/internal/config"
	"github.com/processone/fluux-agent-sub000/internal/download"
	"github.com/processone/fluux-agent-sub000/internal/llm"
	"github.com/processone/fluux-agent-sub000/internal/memory"
	"github.com/processone/fluux-agent-sub000/internal/skills"
	"github.com/processone/fluux-agent-sub000/internal/xmpp"
)

// fakeConn records outbound commands and feeds scripted events.
type fakeConn struct {
	mu     sync.Mutex
	events chan xmpp.Event
	sent   []xmpp.Command
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan xmpp.Event, 16)}
}

func (f *fakeConn) Events() <-chan xmpp.Event { return f.events }

func (f *fakeConn) Send(cmd xmpp.Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) commands() []xmpp.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]xmpp.Command, len(f.sent))
	copy(out, f.sent)
	return out
}

type llmCall struct {
	system   string
	messages []llm.Message
	tools    []llm.ToolDefinition
}

// scriptedLLM replays canned responses and records every call.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     []llmCall
	err       error
}

func (s *scriptedLLM) Complete(_ context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, llmCall{system: system, messages: messages, tools: tools})
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.Response{Text: "default answer", Stop: llm.StopEndTurn}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) Description() string { return "fake (test-model)" }

func (s *scriptedLLM) recorded() []llmCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llmCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func boolPtr(b bool) *bool { return &b }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Mode:            config.ModeComponent,
			Host:            "localhost",
			Port:            5347,
			ComponentDomain: "agent.localhost",
			ComponentSecret: "secret",
		},
		Agent: config.AgentConfig{
			Name:           "fluux",
			AllowedJIDs:    []string{"*"},
			AllowedDomains: []string{"*"},
		},
		Rooms: []config.RoomConfig{
			{JID: "room@conference.localhost", Nick: "fluux"},
		},
		Keepalive: config.KeepaliveConfig{Enabled: boolPtr(false)},
	}
}

func testRuntime(t *testing.T, cfg *config.Config, client *scriptedLLM, reg *skills.Registry) (*Runtime, memory.Store) {
	t.Helper()
	store, err := memory.Open("file", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if reg == nil {
		reg = skills.NewRegistry()
	}
	return New(cfg, client, store, download.New(nil), reg, nil), store
}

func TestConnectedJoinsRooms(t *testing.T) {
	r, _ := testRuntime(t, testConfig(), &scriptedLLM{}, nil)
	conn := newFakeConn()

	r.handleEvent(context.Background(), conn, xmpp.Event{Kind: xmpp.EventConnected})

	cmds := conn.commands()
	if len(cmds) != 1 || cmds[0].Kind != xmpp.CmdJoinMuc {
		t.Fatalf("commands = %+v", cmds)
	}
	if cmds[0].Room != "room@conference.localhost" || cmds[0].Nick != "fluux" {
		t.Errorf("join = %+v", cmds[0])
	}
}

func TestChatMessageFlow(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{
		{Text: "hello Alice", Stop: llm.StopEndTurn, InputTokens: 5, OutputTokens: 3},
	}}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/phone",
		Body: "hi there",
		Type: xmpp.Chat,
	})

	cmds := conn.commands()
	if len(cmds) != 2 {
		t.Fatalf("commands = %+v", cmds)
	}
	if cmds[0].Kind != xmpp.CmdSendChatState || cmds[0].State != xmpp.StateComposing {
		t.Errorf("first command = %+v, want composing", cmds[0])
	}
	if cmds[1].Kind != xmpp.CmdSendMessage || cmds[1].Body != "hello Alice" || cmds[1].To != "alice@localhost" {
		t.Errorf("reply = %+v", cmds[1])
	}

	entries, _ := store.GetHistory("alice@localhost", 10)
	if len(entries) != 2 || entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Errorf("history = %+v", entries)
	}
	if entries[1].Body != "hello Alice" {
		t.Errorf("assistant entry = %q", entries[1].Body)
	}
}

func TestChatDisallowedJIDDropped(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.AllowedJIDs = []string{"bob@localhost"}
	client := &scriptedLLM{}
	r, _ := testRuntime(t, cfg, client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "mallory@localhost/x", Body: "let me in", Type: xmpp.Chat,
	})

	if len(conn.commands()) != 0 {
		t.Errorf("commands = %+v, want none", conn.commands())
	}
	if len(client.recorded()) != 0 {
		t.Error("LLM must not be called for disallowed senders")
	}
}

func TestChatDisallowedDomainDropped(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.AllowedDomains = nil // own domain only
	r, _ := testRuntime(t, cfg, &scriptedLLM{}, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "eve@evil.example/x", Body: "hi", Type: xmpp.Chat,
	})
	if len(conn.commands()) != 0 {
		t.Errorf("commands = %+v, want none", conn.commands())
	}
}

func TestSlashCommandsBypassLLM(t *testing.T) {
	client := &scriptedLLM{}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x", Body: "/ping", Type: xmpp.Chat,
	})

	cmds := conn.commands()
	if len(cmds) != 1 || cmds[0].Body != "pong" {
		t.Fatalf("commands = %+v", cmds)
	}
	if len(client.recorded()) != 0 {
		t.Error("slash commands must not reach the LLM")
	}
	if entries, _ := store.GetHistory("alice@localhost", 10); len(entries) != 0 {
		t.Errorf("slash commands must not persist, history = %+v", entries)
	}
}

func TestGroupchatMentionFlow(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{
		{Text: "42", Stop: llm.StopEndTurn},
	}}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	// Unmentioned traffic is persisted but not answered.
	r.handleGroupchat(context.Background(), conn, &xmpp.InboundMessage{
		From: "room@conference.localhost/bob", Body: "anyone seen the build?", Type: xmpp.GroupChat,
	})
	if len(conn.commands()) != 0 {
		t.Fatalf("unmentioned message must not be answered: %+v", conn.commands())
	}

	r.handleGroupchat(context.Background(), conn, &xmpp.InboundMessage{
		From: "room@conference.localhost/bob", Body: "fluux: what is the answer?", Type: xmpp.GroupChat,
	})

	cmds := conn.commands()
	if len(cmds) != 2 {
		t.Fatalf("commands = %+v", cmds)
	}
	if cmds[0].Kind != xmpp.CmdSendChatState || cmds[0].MsgType != xmpp.GroupChat {
		t.Errorf("first = %+v", cmds[0])
	}
	if cmds[1].Kind != xmpp.CmdSendMucMessage || cmds[1].To != "room@conference.localhost" || cmds[1].Body != "42" {
		t.Errorf("reply = %+v", cmds[1])
	}

	// Both room messages were persisted with the sender label.
	entries, _ := store.GetHistory("room@conference.localhost", 10)
	if len(entries) != 3 {
		t.Fatalf("history = %+v", entries)
	}
	if !strings.HasPrefix(entries[0].Body, "bob@muc: ") {
		t.Errorf("entry 0 = %q", entries[0].Body)
	}

	// The LLM saw the stripped body as the final message.
	calls := client.recorded()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	last := calls[0].messages[len(calls[0].messages)-1]
	if last.Content != "what is the answer?" {
		t.Errorf("final message = %q", last.Content)
	}
}

func TestGroupchatSelfReflectionDropped(t *testing.T) {
	client := &scriptedLLM{}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleGroupchat(context.Background(), conn, &xmpp.InboundMessage{
		From: "room@conference.localhost/fluux", Body: "fluux: echo", Type: xmpp.GroupChat,
	})

	if len(conn.commands()) != 0 || len(client.recorded()) != 0 {
		t.Error("own reflection must be dropped")
	}
	if entries, _ := store.GetHistory("room@conference.localhost", 10); len(entries) != 0 {
		t.Errorf("reflection persisted: %+v", entries)
	}
}

func TestGroupchatUnknownRoomDropped(t *testing.T) {
	r, _ := testRuntime(t, testConfig(), &scriptedLLM{}, nil)
	conn := newFakeConn()

	r.handleGroupchat(context.Background(), conn, &xmpp.InboundMessage{
		From: "other@conference.localhost/bob", Body: "fluux: hi", Type: xmpp.GroupChat,
	})
	if len(conn.commands()) != 0 {
		t.Error("unknown room must be dropped")
	}
}

func TestPresenceSubscribe(t *testing.T) {
	r, _ := testRuntime(t, testConfig(), &scriptedLLM{}, nil)
	conn := newFakeConn()

	r.handlePresence(conn, &xmpp.InboundPresence{From: "alice@localhost/x", Kind: xmpp.PresenceSubscribe})

	cmds := conn.commands()
	if len(cmds) != 1 || cmds[0].Kind != xmpp.CmdSendRaw {
		t.Fatalf("commands = %+v", cmds)
	}
	if !strings.Contains(cmds[0].Raw, "type='subscribed'") || !strings.Contains(cmds[0].Raw, "alice@localhost") {
		t.Errorf("raw = %q", cmds[0].Raw)
	}

	// Non-subscribe presence is log-only.
	r.handlePresence(conn, &xmpp.InboundPresence{From: "alice@localhost/x", Kind: xmpp.PresenceUnavailable})
	if len(conn.commands()) != 1 {
		t.Error("unavailable presence must not produce commands")
	}
}

func TestPresenceSubscribeDenied(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.AllowedJIDs = []string{"bob@localhost"}
	r, _ := testRuntime(t, cfg, &scriptedLLM{}, nil)
	conn := newFakeConn()

	r.handlePresence(conn, &xmpp.InboundPresence{From: "mallory@localhost/x", Kind: xmpp.PresenceSubscribe})
	if len(conn.commands()) != 0 {
		t.Errorf("commands = %+v, want none", conn.commands())
	}
}

func TestStreamErrorClassification(t *testing.T) {
	r, _ := testRuntime(t, testConfig(), &scriptedLLM{}, nil)
	conn := newFakeConn()

	reason, done := r.handleEvent(context.Background(), conn, xmpp.Event{Kind: xmpp.EventStreamError, Condition: "conflict"})
	if !done || !reason.Conflict {
		t.Errorf("conflict: reason = %+v done = %v", reason, done)
	}

	reason, done = r.handleEvent(context.Background(), conn, xmpp.Event{Kind: xmpp.EventStreamError, Condition: "system-shutdown"})
	if !done || reason.Conflict || reason.StreamCondition != "system-shutdown" {
		t.Errorf("shutdown: reason = %+v done = %v", reason, done)
	}

	reason, done = r.handleEvent(context.Background(), conn, xmpp.Event{Kind: xmpp.EventError, Err: "Read timeout: no data from server"})
	if !done || reason.Conflict || reason.StreamCondition != "" {
		t.Errorf("read timeout: reason = %+v done = %v", reason, done)
	}
}

func TestRunReturnsOnClosedEvents(t *testing.T) {
	r, _ := testRuntime(t, testConfig(), &scriptedLLM{}, nil)
	conn := newFakeConn()
	close(conn.events)

	done := make(chan xmpp.DisconnectReason, 1)
	go func() { done <- r.Run(context.Background(), conn) }()

	select {
	case reason := <-done:
		if reason.Conflict || reason.StreamCondition != "" {
			t.Errorf("reason = %+v, want connection lost", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after events channel closed")
	}
}

func TestAgenticLoopWithOneTool(t *testing.T) {
	reg := skills.NewRegistry()
	executed := make(chan map[string]any, 1)
	reg.Register(&funcSkill{
		name: "web_search",
		fn: func(input map[string]any) (string, error) {
			executed <- input
			return "search says: sunny", nil
		},
	})

	client := &scriptedLLM{responses: []*llm.Response{
		{
			Stop:      llm.StopToolUse,
			ToolCalls: []llm.ToolCall{{ID: "t1", Name: "web_search", Input: map[string]any{"query": "x"}}},
			EchoBlocks: []llm.ContentBlock{
				{Type: llm.BlockToolUse, ID: "t1", Name: "web_search", Input: map[string]any{"query": "x"}},
			},
		},
		{Text: "done", Stop: llm.StopEndTurn},
	}}
	r, _ := testRuntime(t, testConfig(), client, reg)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x", Body: "weather?", Type: xmpp.Chat,
	})

	select {
	case input := <-executed:
		if input["query"] != "x" {
			t.Errorf("skill input = %+v", input)
		}
	default:
		t.Fatal("skill was not executed")
	}

	cmds := conn.commands()
	if cmds[len(cmds)-1].Body != "done" {
		t.Errorf("final reply = %+v", cmds[len(cmds)-1])
	}

	calls := client.recorded()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(calls))
	}
	if len(calls[0].tools) != 1 || calls[0].tools[0].Name != "web_search" {
		t.Errorf("first call tools = %+v", calls[0].tools)
	}

	// Second call carries the echoed assistant block and the tool result.
	msgs := calls[1].messages
	assistant := msgs[len(msgs)-2]
	if assistant.Role != "assistant" || len(assistant.Blocks) != 1 || assistant.Blocks[0].ID != "t1" {
		t.Errorf("assistant echo = %+v", assistant)
	}
	result := msgs[len(msgs)-1]
	if result.Role != "user" || len(result.Blocks) != 1 {
		t.Fatalf("result message = %+v", result)
	}
	if result.Blocks[0].Type != llm.BlockToolResult || result.Blocks[0].ToolUseID != "t1" || result.Blocks[0].Content != "search says: sunny" {
		t.Errorf("tool result = %+v", result.Blocks[0])
	}
}

func TestAgenticLoopUnknownTool(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{
		{
			Stop:       llm.StopToolUse,
			ToolCalls:  []llm.ToolCall{{ID: "t9", Name: "teleport"}},
			EchoBlocks: []llm.ContentBlock{{Type: llm.BlockToolUse, ID: "t9", Name: "teleport"}},
		},
		{Text: "cannot do that", Stop: llm.StopEndTurn},
	}}
	r, _ := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x", Body: "beam me up", Type: xmpp.Chat,
	})

	calls := client.recorded()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	result := calls[1].messages[len(calls[1].messages)-1]
	if result.Blocks[0].Content != "Error: unknown tool 'teleport'" {
		t.Errorf("tool result = %q", result.Blocks[0].Content)
	}
}

func TestAgenticLoopForcedFinalCall(t *testing.T) {
	// Every round asks for another tool; after maxToolRounds the final
	// tool-free call must be made.
	reg := skills.NewRegistry()
	reg.Register(&funcSkill{name: "loop_tool", fn: func(map[string]any) (string, error) { return "again", nil }})

	var responses []*llm.Response
	for i := 0; i < maxToolRounds; i++ {
		responses = append(responses, &llm.Response{
			Stop:       llm.StopToolUse,
			ToolCalls:  []llm.ToolCall{{ID: fmt.Sprintf("t%d", i), Name: "loop_tool"}},
			EchoBlocks: []llm.ContentBlock{{Type: llm.BlockToolUse, ID: fmt.Sprintf("t%d", i), Name: "loop_tool"}},
		})
	}
	responses = append(responses, &llm.Response{Text: "forced answer", Stop: llm.StopEndTurn})

	client := &scriptedLLM{responses: responses}
	r, _ := testRuntime(t, testConfig(), client, reg)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x", Body: "loop forever", Type: xmpp.Chat,
	})

	calls := client.recorded()
	if len(calls) != maxToolRounds+1 {
		t.Fatalf("llm calls = %d, want %d", len(calls), maxToolRounds+1)
	}
	if calls[len(calls)-1].tools != nil {
		t.Error("forced final call must carry no tools")
	}
	cmds := conn.commands()
	if cmds[len(cmds)-1].Body != "forced answer" {
		t.Errorf("reply = %+v", cmds[len(cmds)-1])
	}
}

func TestLLMErrorSendsApology(t *testing.T) {
	client := &scriptedLLM{err: fmt.Errorf("api unreachable")}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x", Body: "hello?", Type: xmpp.Chat,
	})

	cmds := conn.commands()
	if len(cmds) != 3 {
		t.Fatalf("commands = %+v", cmds)
	}
	if cmds[1].Kind != xmpp.CmdSendChatState || cmds[1].State != xmpp.StatePaused {
		t.Errorf("expected paused chat state, got %+v", cmds[1])
	}
	if !strings.HasPrefix(cmds[2].Body, "Sorry, an error occurred:") {
		t.Errorf("apology = %q", cmds[2].Body)
	}

	// The inbound message is persisted; the apology is not.
	entries, _ := store.GetHistory("alice@localhost", 10)
	if len(entries) != 1 || entries[0].Role != "user" {
		t.Errorf("history = %+v", entries)
	}
}

func TestAttachmentFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("tiny png"))
	}))
	defer srv.Close()

	client := &scriptedLLM{responses: []*llm.Response{
		{Text: "nice picture", Stop: llm.StopEndTurn},
	}}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x",
		Body: "look at this",
		Type: xmpp.Chat,
		OOB:  []xmpp.OOB{{URL: srv.URL + "/cat.png"}},
	})
	r.wg.Wait()

	cmds := conn.commands()
	last := cmds[len(cmds)-1]
	if last.Kind != xmpp.CmdSendMessage || last.Body != "nice picture" {
		t.Errorf("reply = %+v", last)
	}

	calls := client.recorded()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	final := calls[0].messages[len(calls[0].messages)-1]
	if len(final.Blocks) != 2 {
		t.Fatalf("blocks = %+v", final.Blocks)
	}
	if final.Blocks[0].Type != llm.BlockImage || final.Blocks[0].MediaType != "image/png" {
		t.Errorf("image block = %+v", final.Blocks[0])
	}
	if final.Blocks[1].Type != llm.BlockText || final.Blocks[1].Text != "look at this" {
		t.Errorf("text block = %+v", final.Blocks[1])
	}

	entries, _ := store.GetHistory("alice@localhost", 10)
	if len(entries) != 2 {
		t.Fatalf("history = %+v", entries)
	}
	if !strings.Contains(entries[0].Body, "attachments:") {
		t.Errorf("inbound entry = %q", entries[0].Body)
	}
}

func TestAttachmentDownloadFailure(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{
		{Text: "could not see it", Stop: llm.StopEndTurn},
	}}
	r, _ := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	// Plain HTTP to a non-loopback host is refused by the downloader.
	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x",
		Body: "",
		Type: xmpp.Chat,
		OOB:  []xmpp.OOB{{URL: "http://example.com/cat.png"}},
	})
	r.wg.Wait()

	calls := client.recorded()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	final := calls[0].messages[len(calls[0].messages)-1]
	if len(final.Blocks) != 1 || final.Blocks[0].Type != llm.BlockText {
		t.Fatalf("blocks = %+v", final.Blocks)
	}
	if !strings.HasPrefix(final.Blocks[0].Text, "[File download failed:") {
		t.Errorf("failure block = %q", final.Blocks[0].Text)
	}
}

func TestReactionFlow(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{
		{Text: "glad you liked it", Stop: llm.StopEndTurn},
	}}
	r, store := testRuntime(t, testConfig(), client, nil)
	conn := newFakeConn()

	r.handleReaction(context.Background(), conn, &xmpp.InboundReaction{
		From:      "alice@localhost/x",
		MessageID: "msg7",
		Emojis:    []string{"👍"},
		Type:      xmpp.Chat,
	})

	cmds := conn.commands()
	if len(cmds) != 1 || cmds[0].Kind != xmpp.CmdSendMessage || cmds[0].Body != "glad you liked it" {
		t.Fatalf("commands = %+v", cmds)
	}

	entries, _ := store.GetHistory("alice@localhost", 10)
	if len(entries) != 2 {
		t.Fatalf("history = %+v", entries)
	}
	if !strings.Contains(entries[0].Body, "👍") || !strings.Contains(entries[0].Body, "msg7") {
		t.Errorf("reaction entry = %q", entries[0].Body)
	}
}

func TestPlainTextReplyOption(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.PlainText = true
	client := &scriptedLLM{responses: []*llm.Response{
		{Text: "# Result\n\nUse **caution**.", Stop: llm.StopEndTurn},
	}}
	r, _ := testRuntime(t, cfg, client, nil)
	conn := newFakeConn()

	r.handleChat(context.Background(), conn, &xmpp.InboundMessage{
		From: "alice@localhost/x", Body: "report", Type: xmpp.Chat,
	})

	cmds := conn.commands()
	reply := cmds[len(cmds)-1].Body
	if strings.Contains(reply, "#") || strings.Contains(reply, "**") {
		t.Errorf("reply still contains markdown: %q", reply)
	}
	if !strings.Contains(reply, "Result") || !strings.Contains(reply, "caution") {
		t.Errorf("reply lost content: %q", reply)
	}
}

// funcSkill adapts a bare function to the Skill interface.
type funcSkill struct {
	name string
	fn   func(input map[string]any) (string, error)
}

func (s *funcSkill) Name() string        { return s.name }
func (s *funcSkill) Description() string { return "test skill" }
func (s *funcSkill) InputSchema() map[string]any {
	return map[string]any{"type": "object"}
}
func (s *funcSkill) Capabilities() []string { return nil }
func (s *funcSkill) Execute(_ context.Context, input map[string]any, _ skills.SkillContext) (string, error) {
	return s.fn(input)
}
