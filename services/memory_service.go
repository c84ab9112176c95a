package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wevn/wevn/models"
)

const (
	messageTypeHuman = "human"
	messageTypeAI    = "ai"
)

const memorySchema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS summaries (
	session_id TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// MemoryService stores per-session conversation history in sqlite and
// keeps each session under a token budget by folding old turns into a
// running summary. All writes for a session serialize on a per-session
// lock, so concurrent requests against different sessions never block
// each other.
type MemoryService struct {
	db          *sql.DB
	chat        ChatModel
	logger      *zap.SugaredLogger
	tokenBudget int
	keepRecent  int

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// countTokens is swappable in tests.
	countTokens func(text string) int
}

func NewMemoryService(dbPath string, chat ChatModel, tokenBudget, keepRecent int, logger *zap.SugaredLogger) (*MemoryService, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec(memorySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session db: %w", err)
	}
	m := &MemoryService{
		db:          db,
		chat:        chat,
		logger:      logger,
		tokenBudget: tokenBudget,
		keepRecent:  keepRecent,
		locks:       make(map[string]*sync.Mutex),
	}
	m.countTokens = newTokenCounter(logger)
	return m, nil
}

func (m *MemoryService) Close() error {
	return m.db.Close()
}

// newTokenCounter returns a cl100k_base counter, or a bytes/4 estimate
// when the encoding cannot be loaded.
func newTokenCounter(logger *zap.SugaredLogger) func(string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warnw("memory: tiktoken unavailable, estimating tokens", "error", err)
		return func(text string) int { return len(text) / 4 }
	}
	return func(text string) int { return len(enc.Encode(text, nil, nil)) }
}

func (m *MemoryService) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// Load renders the session history as a prompt block: the running
// summary, if any, then the retained turns.
func (m *MemoryService) Load(ctx context.Context, sessionID string) (string, error) {
	summary, err := m.summary(ctx, sessionID)
	if err != nil {
		return "", err
	}
	msgs, err := m.HistoryMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if summary != "" {
		b.WriteString("Earlier in this conversation: ")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	for _, msg := range msgs {
		switch msg.Type {
		case messageTypeHuman:
			b.WriteString("User: ")
		case messageTypeAI:
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// HistoryMessages returns the retained messages of a session in order.
func (m *MemoryService) HistoryMessages(ctx context.Context, sessionID string) ([]models.HistoryMessage, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT type, content FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var msgs []models.HistoryMessage
	for rows.Next() {
		var msg models.HistoryMessage
		if err := rows.Scan(&msg.Type, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// SaveTurn appends a question/answer pair and compacts the session if
// it has outgrown the token budget.
func (m *MemoryService) SaveTurn(ctx context.Context, sessionID, question, answer string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	defer tx.Rollback()
	for _, msg := range []struct{ typ, content string }{
		{messageTypeHuman, question},
		{messageTypeAI, answer},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages(session_id, type, content) VALUES(?, ?, ?)`,
			sessionID, msg.typ, msg.content); err != nil {
			return fmt.Errorf("save turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save turn: %w", err)
	}

	m.compact(ctx, sessionID)
	return nil
}

// Clear drops all history and the running summary for a session.
func (m *MemoryService) Clear(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM summaries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (m *MemoryService) summary(ctx context.Context, sessionID string) (string, error) {
	var summary string
	err := m.db.QueryRowContext(ctx,
		`SELECT content FROM summaries WHERE session_id = ?`, sessionID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load summary: %w", err)
	}
	return summary, nil
}

// compact folds the oldest turns into the running summary once the
// session exceeds the budget. A failed summarization leaves the
// transcript untouched; the session just runs long until the next save.
func (m *MemoryService) compact(ctx context.Context, sessionID string) {
	type row struct {
		id      int64
		typ     string
		content string
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, type, content FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		m.logger.Warnw("memory: compaction read failed", "session", sessionID, "error", err)
		return
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.typ, &r.content); err != nil {
			rows.Close()
			m.logger.Warnw("memory: compaction scan failed", "session", sessionID, "error", err)
			return
		}
		all = append(all, r)
	}
	rows.Close()

	total := 0
	for _, r := range all {
		total += m.countTokens(r.content)
	}
	keep := m.keepRecent * 2 // each turn is two messages
	if total <= m.tokenBudget || len(all) <= keep {
		return
	}

	old := all[:len(all)-keep]
	prior, err := m.summary(ctx, sessionID)
	if err != nil {
		m.logger.Warnw("memory: compaction summary read failed", "session", sessionID, "error", err)
		return
	}

	var transcript strings.Builder
	if prior != "" {
		transcript.WriteString("Previous summary: ")
		transcript.WriteString(prior)
		transcript.WriteString("\n")
	}
	for _, r := range old {
		if r.typ == messageTypeHuman {
			transcript.WriteString("User: ")
		} else {
			transcript.WriteString("Assistant: ")
		}
		transcript.WriteString(r.content)
		transcript.WriteString("\n")
	}

	summary, err := m.chat.Invoke(ctx, BuildCompactionPrompt(transcript.String()))
	if err != nil {
		m.logger.Warnw("memory: compaction summarize failed", "session", sessionID, "error", err)
		return
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Warnw("memory: compaction write failed", "session", sessionID, "error", err)
		return
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO summaries(session_id, content, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET content = excluded.content, updated_at = CURRENT_TIMESTAMP`,
		sessionID, strings.TrimSpace(summary)); err != nil {
		m.logger.Warnw("memory: compaction write failed", "session", sessionID, "error", err)
		return
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND id <= ?`,
		sessionID, old[len(old)-1].id); err != nil {
		m.logger.Warnw("memory: compaction write failed", "session", sessionID, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		m.logger.Warnw("memory: compaction write failed", "session", sessionID, "error", err)
	} else {
		m.logger.Infow("memory: compacted session", "session", sessionID, "folded", len(old))
	}
}
