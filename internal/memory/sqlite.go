package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history, sessions, context, and knowledge in a
// SQLite database at <root>/memory.db. Attachments and workspace
// documents stay on disk in the same layout as the file backend.
type SQLiteStore struct {
	db    *sql.DB
	root  string
	locks *jidLocks
}

// NewSQLiteStore creates the SQLite backend rooted at root.
func NewSQLiteStore(root string) (*SQLiteStore, error) {
	if root == "" {
		return nil, fmt.Errorf("memory path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create memory root: %w", err)
	}

	dbPath := filepath.Join(root, "memory.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, root: root, locks: newJIDLocks()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		jid TEXT NOT NULL,
		role TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_jid ON messages(jid, id);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		jid TEXT NOT NULL,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_jid ON sessions(jid);

	CREATE TABLE IF NOT EXISTS contexts (
		jid TEXT PRIMARY KEY,
		body TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		jid TEXT NOT NULL,
		key TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_jid ON knowledge(jid);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Root() string { return s.root }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) StoreMessage(jid, role, body string, opts MessageOptions) error {
	unlock := s.locks.lock(jid)
	defer unlock()

	_, err := s.db.Exec(
		`INSERT INTO messages (jid, role, body, created_at) VALUES (?, ?, ?, ?)`,
		jid, role, composeBody(body, opts), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(jid string, limit int) ([]Entry, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT role, body FROM (
			SELECT id, role, body FROM messages WHERE jid = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		jid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Body); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// NewSession serializes the current history into the sessions table
// and clears the live messages.
func (s *SQLiteStore) NewSession(jid string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	rows, err := s.db.Query(`SELECT role, body FROM messages WHERE jid = ? ORDER BY id ASC`, jid)
	if err != nil {
		return "", fmt.Errorf("read history: %w", err)
	}
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Body); err != nil {
			rows.Close()
			return "", err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(entries) == 0 {
		return "No active session to archive.", nil
	}

	var content strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&content, "### %s\n%s\n\n", e.Role, e.Body)
	}
	name := time.Now().UTC().Format(sessionStamp) + ".md"

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(
		`INSERT INTO sessions (jid, name, content, created_at) VALUES (?, ?, ?, ?)`,
		jid, name, content.String(), time.Now().UTC(),
	); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("archive session: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE jid = ?`, jid); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("clear history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Archived %d messages to session %s. Starting fresh.", len(entries), name), nil
}

// Forget erases the live history and context. Archived sessions and
// knowledge are kept.
func (s *SQLiteStore) Forget(jid string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	var msgs int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE jid = ?`, jid).Scan(&msgs); err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	for _, q := range []string{
		`DELETE FROM messages WHERE jid = ?`,
		`DELETE FROM contexts WHERE jid = ?`,
	} {
		if _, err := tx.Exec(q, jid); err != nil {
			tx.Rollback()
			return "", fmt.Errorf("forget: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Forgot %d messages and the stored context.", msgs), nil
}

func (s *SQLiteStore) SetUserContext(jid, text string) error {
	unlock := s.locks.lock(jid)
	defer unlock()

	_, err := s.db.Exec(
		`INSERT INTO contexts (jid, body) VALUES (?, ?)
		 ON CONFLICT(jid) DO UPDATE SET body = excluded.body`,
		jid, text,
	)
	return err
}

func (s *SQLiteStore) GetUserContext(jid string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	var body string
	err := s.db.QueryRow(`SELECT body FROM contexts WHERE jid = ?`, jid).Scan(&body)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return body, err
}

func (s *SQLiteStore) MessageCount(jid string) (int, error) {
	return s.count(`SELECT COUNT(*) FROM messages WHERE jid = ?`, jid)
}

func (s *SQLiteStore) SessionCount(jid string) (int, error) {
	return s.count(`SELECT COUNT(*) FROM sessions WHERE jid = ?`, jid)
}

func (s *SQLiteStore) FileCount(jid string) (int, error) {
	return countFiles(filepath.Join(s.root, jid, "files")), nil
}

func (s *SQLiteStore) KnowledgeCount(jid string) (int, error) {
	return s.count(`SELECT COUNT(*) FROM knowledge WHERE jid = ?`, jid)
}

func (s *SQLiteStore) count(query, jid string) (int, error) {
	var n int
	err := s.db.QueryRow(query, jid).Scan(&n)
	return n, err
}

// GetWorkspaceContext reads the same on-disk documents as the file
// backend; workspace files are operator-edited, not database rows.
func (s *SQLiteStore) GetWorkspaceContext(jid string) (*WorkspaceContext, error) {
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
	if wc.UserProfile, err = readOptional(filepath.Join(s.root, jid, "profile.md")); err != nil {
		return nil, err
	}
	if wc.UserMemory, err = readOptional(filepath.Join(s.root, jid, "memory.md")); err != nil {
		return nil, err
	}
	return wc, nil
}

func (s *SQLiteStore) KnowledgeStore(jid, key, content string) error {
	unlock := s.locks.lock(jid)
	defer unlock()

	_, err := s.db.Exec(
		`INSERT INTO knowledge (jid, key, content, created_at) VALUES (?, ?, ?, ?)`,
		jid, key, content, time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) KnowledgeSearch(jid, query string) (string, error) {
	unlock := s.locks.lock(jid)
	defer unlock()

	rows, err := s.db.Query(
		`SELECT key, content, created_at FROM knowledge WHERE jid = ?`, jid,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	q := strings.ToLower(query)
	var matches []knowledgeNote
	for rows.Next() {
		var n knowledgeNote
		if err := rows.Scan(&n.Key, &n.Content, &n.CreatedAt); err != nil {
			return "", err
		}
		if strings.Contains(strings.ToLower(n.Key), q) || strings.Contains(strings.ToLower(n.Content), q) {
			matches = append(matches, n)
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
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

func (s *SQLiteStore) FilesDir(jid string) (string, error) {
	dir := filepath.Join(s.root, jid, "files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create files dir: %w", err)
	}
	return dir, nil
}
