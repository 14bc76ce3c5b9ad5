// Package agent implements the event-driven runtime: it consumes
// inbound XMPP events, enforces authorization, drives the agentic
// tool-use loop against the LLM, persists conversation memory, and
// emits outbound XMPP commands.
package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/processone/fluux-agent-sub000/internal/config"
	"github.com/processone/fluux-agent-sub000/internal/download"
	"github.com/processone/fluux-agent-sub000/internal/llm"
	"github.com/processone/fluux-agent-sub000/internal/memory"
	"github.com/processone/fluux-agent-sub000/internal/skills"
	"github.com/processone/fluux-agent-sub000/internal/xmpp"
)

const (
	// maxToolRounds bounds the agentic loop; one extra forced call
	// guarantees a text answer.
	maxToolRounds = 10

	// historyTail is how many history entries accompany each LLM call.
	historyTail = 20
)

// Conn is the slice of the XMPP connection the runtime drives.
// *xmpp.Conn satisfies it.
type Conn interface {
	Events() <-chan xmpp.Event
	Send(cmd xmpp.Command) bool
	Close()
}

// Runtime drives one live connection. Construct once per process;
// Run may be called once per (re)connection.
type Runtime struct {
	cfg        *config.Config
	llm        llm.Client
	store      memory.Store
	downloader *download.Downloader
	registry   *skills.Registry
	logger     *slog.Logger
	startTime  time.Time

	wg sync.WaitGroup
}

// New creates a runtime.
func New(cfg *config.Config, client llm.Client, store memory.Store, dl *download.Downloader, reg *skills.Registry, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:        cfg,
		llm:        client,
		store:      store,
		downloader: dl,
		registry:   reg,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// Run consumes events from conn until it disconnects and returns the
// reason. Detached attachment tasks are awaited before returning.
func (r *Runtime) Run(ctx context.Context, conn Conn) xmpp.DisconnectReason {
	defer r.wg.Wait()

	var tick <-chan time.Time
	if r.cfg.Keepalive.KeepaliveEnabled() {
		ticker := time.NewTicker(time.Duration(r.cfg.Keepalive.PingIntervalSecs) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return xmpp.ConnectionLost

		case <-tick:
			if !conn.Send(xmpp.Command{Kind: xmpp.CmdPing}) {
				r.logger.Warn("keepalive enqueue failed, writer is gone")
				return xmpp.ConnectionLost
			}
			r.logger.Debug("keepalive ping sent")

		case ev, ok := <-conn.Events():
			if !ok {
				return xmpp.ConnectionLost
			}
			if reason, done := r.handleEvent(ctx, conn, ev); done {
				return reason
			}
		}
	}
}

// handleEvent processes one inbound event. done reports that the
// connection is over and Run should return reason.
func (r *Runtime) handleEvent(ctx context.Context, conn Conn, ev xmpp.Event) (reason xmpp.DisconnectReason, done bool) {
	switch ev.Kind {
	case xmpp.EventConnected:
		r.logger.Info("connected", "mode", r.cfg.Server.ModeDescription())
		for _, room := range r.cfg.Rooms {
			r.logger.Info("joining room", "room", room.JID, "nick", room.Nick)
			conn.Send(xmpp.Command{Kind: xmpp.CmdJoinMuc, Room: room.JID, Nick: room.Nick})
		}

	case xmpp.EventPresence:
		r.handlePresence(conn, ev.Presence)

	case xmpp.EventMessage:
		switch ev.Message.Type {
		case xmpp.GroupChat:
			r.handleGroupchat(ctx, conn, ev.Message)
		default:
			r.handleChat(ctx, conn, ev.Message)
		}

	case xmpp.EventReaction:
		r.handleReaction(ctx, conn, ev.Reaction)

	case xmpp.EventStreamError:
		if ev.Condition == "conflict" {
			return xmpp.DisconnectReason{Conflict: true}, true
		}
		return xmpp.DisconnectReason{StreamCondition: ev.Condition}, true

	case xmpp.EventError:
		r.logger.Warn("connection error", "error", ev.Err)
		return xmpp.ConnectionLost, true
	}
	return xmpp.DisconnectReason{}, false
}

func (r *Runtime) handlePresence(conn Conn, p *xmpp.InboundPresence) {
	if p.Kind != xmpp.PresenceSubscribe {
		r.logger.Debug("presence", "from", p.From, "kind", p.Kind.String())
		return
	}
	bare := xmpp.Bare(p.From)
	if !r.cfg.IsDomainAllowed(bare) || !r.cfg.IsAllowed(bare) {
		r.logger.Warn("subscription request denied", "from", bare)
		return
	}
	r.logger.Info("accepting subscription", "from", bare)
	conn.Send(xmpp.Command{Kind: xmpp.CmdSendRaw, Raw: xmpp.BuildSubscribed(bare)})
}

func (r *Runtime) handleChat(ctx context.Context, conn Conn, msg *xmpp.InboundMessage) {
	bare := xmpp.Bare(msg.From)
	if !r.cfg.IsDomainAllowed(msg.From) {
		r.logger.Warn("message from disallowed domain", "from", msg.From)
		return
	}
	if !r.cfg.IsAllowed(bare) {
		r.logger.Warn("message from disallowed jid", "from", bare)
		return
	}

	if isCommand(msg.Body) {
		conn.Send(xmpp.Command{Kind: xmpp.CmdSendMessage, To: bare, Body: r.handleCommand(bare, msg.Body)})
		return
	}

	conn.Send(xmpp.Command{Kind: xmpp.CmdSendChatState, To: bare, State: xmpp.StateComposing, MsgType: xmpp.Chat})

	if len(msg.OOB) > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handleAttachments(ctx, conn, msg)
		}()
		return
	}

	if err := r.store.StoreMessage(bare, "user", msg.Body, memory.MessageOptions{ID: msg.ID}); err != nil {
		r.logger.Error("store inbound message", "jid", bare, "error", err)
	}
	r.respond(ctx, conn, bare, llm.TextMessage("user", msg.Body), xmpp.Chat)
}

func (r *Runtime) handleGroupchat(ctx context.Context, conn Conn, msg *xmpp.InboundMessage) {
	roomJID := xmpp.Bare(msg.From)
	room := r.cfg.FindRoom(roomJID)
	if room == nil {
		r.logger.Debug("groupchat from unknown room", "room", roomJID)
		return
	}

	nick := xmpp.Resource(msg.From)
	if strings.EqualFold(nick, room.Nick) {
		return // our own reflection
	}

	// All room traffic is persisted so the shared context survives
	// even when the agent is not addressed.
	if err := r.store.StoreMessage(roomJID, "user", msg.Body, memory.MessageOptions{
		ID:          msg.ID,
		SenderLabel: nick + "@muc",
	}); err != nil {
		r.logger.Error("store room message", "room", roomJID, "error", err)
	}

	if !isMentioned(msg.Body, room.Nick) {
		return
	}

	body := stripMention(msg.Body, room.Nick)
	conn.Send(xmpp.Command{Kind: xmpp.CmdSendChatState, To: roomJID, State: xmpp.StateComposing, MsgType: xmpp.GroupChat})
	r.respond(ctx, conn, roomJID, llm.TextMessage("user", body), xmpp.GroupChat)
}

func (r *Runtime) handleReaction(ctx context.Context, conn Conn, re *xmpp.InboundReaction) {
	bare := xmpp.Bare(re.From)
	emojis := strings.Join(re.Emojis, "")

	if re.Type == xmpp.GroupChat {
		room := r.cfg.FindRoom(bare)
		if room == nil {
			return
		}
		nick := xmpp.Resource(re.From)
		if strings.EqualFold(nick, room.Nick) {
			return
		}
		r.store.StoreMessage(bare, "user", "", memory.MessageOptions{
			ID:          re.MessageID,
			SenderLabel: nick + "@muc",
			Reaction:    emojis,
		})
		prompt := fmt.Sprintf("[%s reacted with %s to message %s]", nick, emojis, re.MessageID)
		r.respond(ctx, conn, bare, llm.TextMessage("user", prompt), xmpp.GroupChat)
		return
	}

	if !r.cfg.IsDomainAllowed(re.From) || !r.cfg.IsAllowed(bare) {
		return
	}
	r.store.StoreMessage(bare, "user", "", memory.MessageOptions{ID: re.MessageID, Reaction: emojis})
	prompt := fmt.Sprintf("[reacted with %s to message %s]", emojis, re.MessageID)
	r.respond(ctx, conn, bare, llm.TextMessage("user", prompt), xmpp.Chat)
}

// respond runs the agentic loop for jid with the history tail plus
// finalMsg, then persists and sends the reply. The caller has already
// persisted the inbound entry.
func (r *Runtime) respond(ctx context.Context, conn Conn, jid string, finalMsg llm.Message, msgType xmpp.MessageType) {
	messages := r.buildMessages(jid, finalMsg)
	system := r.buildSystemPrompt(jid)

	text, tokensIn, tokensOut, err := r.agenticLoop(ctx, jid, system, messages)
	if err != nil {
		r.logger.Error("llm call failed", "jid", jid, "error", err)
		conn.Send(xmpp.Command{Kind: xmpp.CmdSendChatState, To: jid, State: xmpp.StatePaused, MsgType: msgType})
		r.sendReply(conn, jid, "Sorry, an error occurred: "+err.Error(), msgType)
		return
	}

	r.logger.Debug("reply ready", "jid", jid, "tokens_in", tokensIn, "tokens_out", tokensOut)

	if r.cfg.Agent.PlainText {
		text = plainText(text)
	}
	if err := r.store.StoreMessage(jid, "assistant", text, memory.MessageOptions{}); err != nil {
		r.logger.Error("store outbound message", "jid", jid, "error", err)
	}
	r.sendReply(conn, jid, text, msgType)
}

func (r *Runtime) sendReply(conn Conn, jid, text string, msgType xmpp.MessageType) {
	kind := xmpp.CmdSendMessage
	if msgType == xmpp.GroupChat {
		kind = xmpp.CmdSendMucMessage
	}
	conn.Send(xmpp.Command{Kind: kind, To: jid, Body: text})
}

// buildMessages converts the stored tail into LLM messages, replacing
// the most recent entry (the one the caller just persisted) with
// finalMsg so structured content blocks survive.
func (r *Runtime) buildMessages(jid string, finalMsg llm.Message) []llm.Message {
	entries, err := r.store.GetHistory(jid, historyTail)
	if err != nil {
		r.logger.Error("read history", "jid", jid, "error", err)
		return []llm.Message{finalMsg}
	}
	if len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}

	messages := make([]llm.Message, 0, len(entries)+1)
	for _, e := range entries {
		role := e.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		messages = append(messages, llm.TextMessage(role, e.Body))
	}
	return append(messages, finalMsg)
}

// buildSystemPrompt combines the configured prompt with workspace
// documents and the per-user context.
func (r *Runtime) buildSystemPrompt(jid string) string {
	var parts []string
	if r.cfg.Agent.SystemPrompt != "" {
		parts = append(parts, r.cfg.Agent.SystemPrompt)
	}

	if wc, err := r.store.GetWorkspaceContext(jid); err == nil {
		for _, doc := range []struct{ label, body string }{
			{"Identity", wc.Identity},
			{"Personality", wc.Personality},
			{"Instructions", wc.Instructions},
			{"User profile", wc.UserProfile},
			{"User memory", wc.UserMemory},
		} {
			if doc.body != "" {
				parts = append(parts, "## "+doc.label+"\n"+doc.body)
			}
		}
	}

	if userCtx, err := r.store.GetUserContext(jid); err == nil && userCtx != "" {
		parts = append(parts, "## Conversation context\n"+userCtx)
	}

	if len(parts) == 0 {
		return "You are " + r.cfg.Agent.Name + ", a helpful assistant reachable over XMPP."
	}
	return strings.Join(parts, "\n\n")
}

// agenticLoop iterates LLM call, tool execution, LLM call until the
// model stops asking for tools, for at most maxToolRounds rounds plus
// one forced tool-free call.
func (r *Runtime) agenticLoop(ctx context.Context, jid, system string, messages []llm.Message) (string, int, int, error) {
	tools := r.registry.ToolDefinitions()
	var totalIn, totalOut int

	for round := 0; round < maxToolRounds; round++ {
		resp, err := r.llm.Complete(ctx, system, messages, tools)
		if err != nil {
			return "", totalIn, totalOut, err
		}
		totalIn += resp.InputTokens
		totalOut += resp.OutputTokens

		if resp.Stop != llm.StopToolUse || len(resp.ToolCalls) == 0 {
			return resp.Text, totalIn, totalOut, nil
		}

		messages = append(messages, llm.BlockMessage("assistant", resp.EchoBlocks))

		results := make([]llm.ContentBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, llm.ContentBlock{
				Type:      llm.BlockToolResult,
				ToolUseID: call.ID,
				Content:   r.executeTool(ctx, jid, call),
			})
		}
		messages = append(messages, llm.BlockMessage("user", results))
	}

	// Round cap reached. One tool-free call forces a text answer.
	resp, err := r.llm.Complete(ctx, system, messages, nil)
	if err != nil {
		return "", totalIn, totalOut, err
	}
	totalIn += resp.InputTokens
	totalOut += resp.OutputTokens
	return resp.Text, totalIn, totalOut, nil
}

func (r *Runtime) executeTool(ctx context.Context, jid string, call llm.ToolCall) string {
	skill, ok := r.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool '%s'", call.Name)
	}

	r.logger.Info("executing skill", "skill", call.Name, "jid", jid)
	out, err := skill.Execute(ctx, call.Input, skills.SkillContext{JID: jid, MemoryRoot: r.store.Root()})
	if err != nil {
		r.logger.Warn("skill failed", "skill", call.Name, "error", err)
		return "Error: " + err.Error()
	}
	return out
}

// handleAttachments downloads a message's OOB files and runs the
// agentic loop with the stored files as content blocks. Runs detached
// so download latency does not stall the event loop.
func (r *Runtime) handleAttachments(ctx context.Context, conn Conn, msg *xmpp.InboundMessage) {
	bare := xmpp.Bare(msg.From)

	dir, err := r.store.FilesDir(bare)
	if err != nil {
		r.logger.Error("files dir", "jid", bare, "error", err)
		r.sendReply(conn, bare, "Sorry, an error occurred: "+err.Error(), xmpp.Chat)
		return
	}

	var blocks []llm.ContentBlock
	var stored []string

	for _, oob := range msg.OOB {
		f, err := r.downloader.Fetch(ctx, oob.URL, dir)
		if err != nil {
			r.logger.Warn("attachment download failed", "url", oob.URL, "error", err)
			blocks = append(blocks, llm.ContentBlock{
				Type: llm.BlockText,
				Text: fmt.Sprintf("[File download failed: %v]", err),
			})
			continue
		}
		stored = append(stored, filepath.Base(f.Path))

		switch f.Category {
		case download.CategoryImage, download.CategoryDocument:
			data, err := os.ReadFile(f.Path)
			if err != nil {
				blocks = append(blocks, llm.ContentBlock{
					Type: llm.BlockText,
					Text: fmt.Sprintf("[File download failed: %v]", err),
				})
				continue
			}
			blockType := llm.BlockImage
			if f.Category == download.CategoryDocument {
				blockType = llm.BlockDocument
			}
			blocks = append(blocks, llm.ContentBlock{
				Type:      blockType,
				MediaType: f.MediaType,
				Data:      base64.StdEncoding.EncodeToString(data),
			})
		default:
			blocks = append(blocks, llm.ContentBlock{
				Type: llm.BlockText,
				Text: fmt.Sprintf("[File %s (%s) stored but not analyzed]", f.OrigFilename, f.MediaType),
			})
		}
	}

	if msg.Body != "" {
		blocks = append(blocks, llm.ContentBlock{Type: llm.BlockText, Text: msg.Body})
	}

	if err := r.store.StoreMessage(bare, "user", msg.Body, memory.MessageOptions{
		ID:          msg.ID,
		Attachments: stored,
	}); err != nil {
		r.logger.Error("store inbound message", "jid", bare, "error", err)
	}

	r.respond(ctx, conn, bare, llm.BlockMessage("user", blocks), xmpp.Chat)
}
