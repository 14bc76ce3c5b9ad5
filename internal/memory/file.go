package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore is the plain-file backend. Layout per JID:
//
//	<root>/<bareJID>/history.md
//	<root>/<bareJID>/context.md
//	<root>/<bareJID>/sessions/<UTC-yyyymmdd-HHMMSS>.md
//	<root>/<bareJID>/files/<uuid>_<name>
//	<root>/<bareJID>/knowledge.jsonl
//	<root>/<bareJID>/profile.md
//	<root>/<bareJID>/memory.md
//
// Shared workspace documents live in <root>/workspace/.
type FileStore struct {
	root  string
	locks *jidLocks
}

const sessionStamp = "20060102-150405"

// NewFileStore creates the file backend rooted at root, creating the
// directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("memory path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create memory root: %w", err)
	}
	return &FileStore{root: root, locks: newJIDLocks()}, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) jidDir(jid string) string {
	return filepath.Join(s.root, jid)
}

func (s *FileStore) historyPath(jid string) string {
	return filepath.Join(s.jidDir(jid), "history.md")
}

// StoreMessage appends one "### role" block to history.md.
func (s *FileStore) StoreMessage(jid, role, body string, opts MessageOptions) error {
	unlock := s.locks.lock(jid)
	defer unlock()

	if err := os.MkdirAll(s.jidDir(jid), 0o755); err != nil {
		return fmt.Errorf("create jid dir: %w", err)
	}

	f, err := os.OpenFile(s.historyPath(jid), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "### %s\n%s\n\n", role, composeBody(body, opts))
	return err
}

// GetHistory returns up to limit most recent entries, oldest first.
func (s *FileStore) GetHistory(jid string, limit int) ([]Entry, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	entries, err := readHistory(s.historyPath(jid))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// readHistory parses the "### role" block format.
func readHistory(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var entries []Entry
	var current *Entry
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Body = strings.TrimRight(body.String(), "\n")
			entries = append(entries, *current)
			current = nil
			body.Reset()
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if role, ok := strings.CutPrefix(line, "### "); ok {
			flush()
			current = &Entry{Role: strings.TrimSpace(role)}
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()
	return entries, scanner.Err()
}

// NewSession moves history.md into sessions/ under a UTC timestamp.
func (s *FileStore) NewSession(jid string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	entries, err := readHistory(s.historyPath(jid))
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No active session to archive.", nil
	}

	sessDir := filepath.Join(s.jidDir(jid), "sessions")
	if err := os.MkdirAll(sessDir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}

	name := time.Now().UTC().Format(sessionStamp) + ".md"
	if err := os.Rename(s.historyPath(jid), filepath.Join(sessDir, name)); err != nil {
		return "", fmt.Errorf("archive session: %w", err)
	}
	return fmt.Sprintf("Archived %d messages to session %s. Starting fresh.", len(entries), name), nil
}

// Forget erases the live history and context. Archived sessions,
// knowledge, and downloaded files are kept.
func (s *FileStore) Forget(jid string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	entries, _ := readHistory(s.historyPath(jid))

	for _, name := range []string{"history.md", "context.md"} {
		if err := os.Remove(filepath.Join(s.jidDir(jid), name)); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("forget %s: %w", name, err)
		}
	}

	return fmt.Sprintf("Forgot %d messages and the stored context.", len(entries)), nil
}

func (s *FileStore) SetUserContext(jid, text string) error {
	unlock := s.locks.lock(jid)
	defer unlock()

	if err := os.MkdirAll(s.jidDir(jid), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.jidDir(jid), "context.md"), []byte(text), 0o644)
}

func (s *FileStore) GetUserContext(jid string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()
	return readOptional(filepath.Join(s.jidDir(jid), "context.md"))
}

func (s *FileStore) MessageCount(jid string) (int, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	entries, err := readHistory(s.historyPath(jid))
	return len(entries), err
}

func (s *FileStore) SessionCount(jid string) (int, error) {
	return countFiles(filepath.Join(s.jidDir(jid), "sessions")), nil
}

func (s *FileStore) FileCount(jid string) (int, error) {
	return countFiles(filepath.Join(s.jidDir(jid), "files")), nil
}

func (s *FileStore) KnowledgeCount(jid string) (int, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	notes, err := s.readKnowledge(jid)
	return len(notes), err
}

// GetWorkspaceContext reads the shared workspace documents and the
// per-user profile and memory files.
func (s *FileStore) GetWorkspaceContext(jid string) (*WorkspaceContext, error) {
	ws := filepath.Join(s.root, "workspace")
	wc := &WorkspaceContext{}
	var err error

	if wc.Identity, err = readOptional(filepath.Join(ws, "identity.md")); err != nil {
		return nil, err
	}
	if wc.Personality, err = readOptional(filepath.Join(ws, "personality.md")); err != nil {
		return nil, err
	}
	if wc.Instructions, err = readOptional(filepath.Join(ws, "instructions.md")); err != nil {
		return nil, err
	}
	if wc.UserProfile, err = readOptional(filepath.Join(s.jidDir(jid), "profile.md")); err != nil {
		return nil, err
	}
	if wc.UserMemory, err = readOptional(filepath.Join(s.jidDir(jid), "memory.md")); err != nil {
		return nil, err
	}
	return wc, nil
}

type knowledgeNote struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *FileStore) knowledgePath(jid string) string {
	return filepath.Join(s.jidDir(jid), "knowledge.jsonl")
}

// KnowledgeStore appends one JSONL note.
func (s *FileStore) KnowledgeStore(jid, key, content string) error {
	unlock := s.locks.lock(jid)
	defer unlock()

	if err := os.MkdirAll(s.jidDir(jid), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.knowledgePath(jid), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open knowledge: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(knowledgeNote{Key: key, Content: content, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// KnowledgeSearch returns notes whose key or content contains query,
// case-insensitive, newest first, capped at 10.
func (s *FileStore) KnowledgeSearch(jid, query string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	notes, err := s.readKnowledge(jid)
	if err != nil {
		return "", err
	}

	q := strings.ToLower(query)
	var matches []knowledgeNote
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Key), q) || strings.Contains(strings.ToLower(n.Content), q) {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		return "No matching notes found.", nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if len(matches) > 10 {
		matches = matches[:10]
	}

	var b strings.Builder
	for _, n := range matches {
		fmt.Fprintf(&b, "- %s: %s\n", n.Key, n.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *FileStore) readKnowledge(jid string) ([]knowledgeNote, error) {
	f, err := os.Open(s.knowledgePath(jid))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open knowledge: %w", err)
	}
	defer f.Close()

	var notes []knowledgeNote
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var n knowledgeNote
		if err := json.Unmarshal([]byte(line), &n); err != nil {
			// Skip corrupt lines rather than failing the whole read.
			continue
		}
		notes = append(notes, n)
	}
	return notes, scanner.Err()
}

// FilesDir returns the attachment directory for jid, creating it if
// needed.
func (s *FileStore) FilesDir(jid string) (string, error) {
	dir := filepath.Join(s.jidDir(jid), "files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create files dir: %w", err)
	}
	return dir, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}
