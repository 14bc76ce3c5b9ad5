// Package memory provides per-partner conversation storage. Each
// conversation partner (bare JID) gets its own history, archived
// sessions, user context, downloaded files, and knowledge notes.
//
// Two backends exist: a plain-file layout (markdown + JSONL) and a
// SQLite database. Both are safe for concurrent callers through
// per-JID serialization.
package memory

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is one history message.
type Entry struct {
	Role string
	Body string
}

// MessageOptions carries optional per-message metadata.
type MessageOptions struct {
	// ID is the stanza ID of the originating message, when known.
	ID string

	// SenderLabel identifies the speaker in group chats (the MUC
	// nickname). Prepended to the stored body.
	SenderLabel string

	// Attachments lists stored filenames referenced by the message.
	Attachments []string

	// Reaction holds the emoji string when the entry records a
	// reaction rather than a message body.
	Reaction string
}

// WorkspaceContext aggregates the agent's standing instructions and
// per-user profile documents. Empty fields mean the file is absent.
type WorkspaceContext struct {
	Identity     string
	Personality  string
	Instructions string
	UserProfile  string
	UserMemory   string
}

// Store is the memory façade the runtime consumes.
type Store interface {
	// StoreMessage appends one history entry for jid.
	StoreMessage(jid, role, body string, opts MessageOptions) error

	// GetHistory returns up to limit most recent entries, oldest
	// first.
	GetHistory(jid string, limit int) ([]Entry, error)

	// NewSession archives the current history and starts fresh.
	// Returns a human-readable summary.
	NewSession(jid string) (string, error)

	// Forget erases the live history and user context for jid.
	// Archived sessions, knowledge notes, and downloaded files are
	// kept. Returns a human-readable summary.
	Forget(jid string) (string, error)

	SetUserContext(jid, text string) error
	GetUserContext(jid string) (string, error)

	MessageCount(jid string) (int, error)
	SessionCount(jid string) (int, error)
	FileCount(jid string) (int, error)
	KnowledgeCount(jid string) (int, error)

	// GetWorkspaceContext reads the workspace documents plus the
	// per-user profile and memory files.
	GetWorkspaceContext(jid string) (*WorkspaceContext, error)

	KnowledgeStore(jid, key, content string) error
	KnowledgeSearch(jid, query string) (string, error)

	// FilesDir returns the attachment directory for jid, creating it
	// if needed.
	FilesDir(jid string) (string, error)

	// Root returns the memory root path passed to skills.
	Root() string

	Close() error
}

// Open creates a store for the configured backend ("file" or
// "sqlite") rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", backend)
	}
}

// jidLocks serializes operations per JID. Cross-JID operations may
// interleave freely.
type jidLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newJIDLocks() *jidLocks {
	return &jidLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *jidLocks) lock(jid string) func() {
	l.mu.Lock()
	m, ok := l.locks[jid]
	if !ok {
		m = &sync.Mutex{}
		l.locks[jid] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// composeBody renders a message body plus its metadata into the
// stored text form.
func composeBody(body string, opts MessageOptions) string {
	if opts.Reaction != "" {
		ref := ""
		if opts.ID != "" {
			ref = " to message " + opts.ID
		}
		body = fmt.Sprintf("[reacted with %s%s]", opts.Reaction, ref)
	}
	if opts.SenderLabel != "" {
		body = opts.SenderLabel + ": " + body
	}
	if len(opts.Attachments) > 0 {
		body += "\n[attachments: " + strings.Join(opts.Attachments, ", ") + "]"
	}
	return body
}
