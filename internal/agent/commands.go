package agent

import (
	"fmt"
	"strings"
	"time"
)

const helpText = `Available commands:
/new     - archive the current session and start fresh
/reset   - alias for /new
/forget  - erase the current history and stored context
/status  - show agent status
/help    - show this help
/ping    - check that the agent is alive`

// isCommand reports whether body is a slash command. Commands never
// reach the LLM and are never persisted.
func isCommand(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "/")
}

// handleCommand dispatches a slash command for jid and returns the
// reply text. Unknown commands get a pointer to /help.
func (r *Runtime) handleCommand(jid, body string) string {
	cmd := strings.ToLower(strings.Fields(strings.TrimSpace(body))[0])

	switch cmd {
	case "/ping":
		return "pong"
	case "/help":
		return helpText
	case "/new", "/reset":
		out, err := r.store.NewSession(jid)
		if err != nil {
			return "Failed to archive session: " + err.Error()
		}
		return out
	case "/forget":
		out, err := r.store.Forget(jid)
		if err != nil {
			return "Failed to forget: " + err.Error()
		}
		return out
	case "/status":
		return r.statusReport(jid)
	default:
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}
}

// statusReport assembles the /status summary for jid.
func (r *Runtime) statusReport(jid string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s status\n", r.cfg.Agent.Name)
	fmt.Fprintf(&b, "Uptime: %s\n", formatUptime(time.Since(r.startTime)))
	fmt.Fprintf(&b, "Mode: %s\n", r.cfg.Server.ModeDescription())
	fmt.Fprintf(&b, "LLM: %s\n", r.llm.Description())

	if names := r.registry.Names(); len(names) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("Skills: none\n")
	}

	if r.cfg.Keepalive.KeepaliveEnabled() {
		fmt.Fprintf(&b, "Keepalive: enabled (ping %ds, read timeout %ds)\n",
			r.cfg.Keepalive.PingIntervalSecs, r.cfg.Keepalive.ReadTimeoutSecs)
	} else {
		b.WriteString("Keepalive: disabled\n")
	}

	if room := r.cfg.FindRoom(jid); room != nil {
		msgs, _ := r.store.MessageCount(jid)
		sessions, _ := r.store.SessionCount(jid)
		fmt.Fprintf(&b, "Room %s: %d messages, %d archived sessions\n", room.JID, msgs, sessions)
	} else {
		msgs, _ := r.store.MessageCount(jid)
		sessions, _ := r.store.SessionCount(jid)
		files, _ := r.store.FileCount(jid)
		notes, _ := r.store.KnowledgeCount(jid)
		fmt.Fprintf(&b, "You: %d messages, %d sessions, %d files, %d notes\n", msgs, sessions, files, notes)
	}

	if wc, err := r.store.GetWorkspaceContext(jid); err == nil {
		var present []string
		if wc.Identity != "" {
			present = append(present, "identity")
		}
		if wc.Personality != "" {
			present = append(present, "personality")
		}
		if wc.Instructions != "" {
			present = append(present, "instructions")
		}
		if wc.UserProfile != "" {
			present = append(present, "user profile")
		}
		if wc.UserMemory != "" {
			present = append(present, "user memory")
		}
		if len(present) > 0 {
			fmt.Fprintf(&b, "Workspace: %s\n", strings.Join(present, ", "))
		} else {
			b.WriteString("Workspace: no files\n")
		}
	}

	b.WriteString("Access: " + r.domainPolicy())
	return b.String()
}

// domainPolicy describes the domain allowlist in one line.
func (r *Runtime) domainPolicy() string {
	domains := r.cfg.Agent.AllowedDomains
	if len(domains) == 0 {
		return fmt.Sprintf("own domain only (%s)", r.cfg.Server.Domain())
	}
	for _, d := range domains {
		if d == "*" {
			return "all domains"
		}
	}
	return "domains " + strings.Join(domains, ", ")
}

func formatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %02dm", h, m)
}
