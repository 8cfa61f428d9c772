package history

import (
	"strings"
	"time"

	terrors "github.com/odvcencio/tern/pkg/errors"
)

// Transcript entry kinds.
const (
	EntryInput    = "input"
	EntryResponse = "response"
	EntryStatus   = "status"
)

// TranscriptEntry is one recorded exchange item within a session.
type TranscriptEntry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendInput records a submitted input line for history recall. Blank
// lines are dropped.
func (s *Store) AppendInput(sessionID, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	err := s.execWithRetry(
		`INSERT INTO input_history (session_id, line, created_at) VALUES (?, ?, ?)`,
		sessionID, line, time.Now(),
	)
	if err != nil {
		return terrors.Wrap(err, terrors.ErrCodeHistoryWrite, "append input").
			WithContext("session_id", sessionID)
	}
	return nil
}

// RecentInputs returns up to limit most recent input lines across all
// sessions, oldest first, ready to seed the input manager's recall
// buffer.
func (s *Store) RecentInputs(limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT line FROM input_history ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "recent inputs")
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "scan input line")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "recent inputs")
	}

	// Query returns newest first; callers want chronological order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

// AppendTranscript records a transcript entry.
func (s *Store) AppendTranscript(sessionID, kind, content string, tokens int) error {
	err := s.execWithRetry(
		`INSERT INTO transcript (session_id, kind, content, tokens, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, kind, content, tokens, time.Now(),
	)
	if err != nil {
		return terrors.Wrap(err, terrors.ErrCodeHistoryWrite, "append transcript").
			WithContext("session_id", sessionID).
			WithContext("kind", kind)
	}
	return nil
}

// Transcript returns all entries for a session in insertion order.
func (s *Store) Transcript(sessionID string) ([]TranscriptEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, kind, content, tokens, created_at
		FROM transcript
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "read transcript").
			WithContext("session_id", sessionID)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Content, &e.Tokens, &e.CreatedAt); err != nil {
			return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "scan transcript row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "read transcript").
			WithContext("session_id", sessionID)
	}
	return entries, nil
}
