package history

import (
	"database/sql"
	"strings"
	"time"

	terrors "github.com/odvcencio/tern/pkg/errors"
)

// Session status constants.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// Session represents one shell run persisted in SQLite.
type Session struct {
	ID           string     `json:"id"`
	GitRepo      string     `json:"gitRepo,omitempty"`
	GitBranch    string     `json:"gitBranch,omitempty"`
	Backend      string     `json:"backend,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActive   time.Time  `json:"lastActive"`
	MessageCount int        `json:"messageCount"`
	TotalTokens  int        `json:"totalTokens"`
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// CreateSession inserts a new session record.
func (s *Store) CreateSession(session *Session) error {
	status := strings.TrimSpace(strings.ToLower(session.Status))
	if status == "" {
		status = SessionStatusActive
	}

	var completedAt any
	if session.CompletedAt != nil {
		completedAt = *session.CompletedAt
	}

	err := s.execWithRetry(`
		INSERT INTO sessions (session_id, git_repo, git_branch, backend, created_at, last_active, status, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.GitRepo,
		session.GitBranch,
		session.Backend,
		session.CreatedAt,
		session.LastActive,
		status,
		completedAt,
	)
	if err != nil {
		return terrors.Wrap(err, terrors.ErrCodeHistoryWrite, "create session").
			WithContext("session_id", session.ID)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	query := `
		SELECT session_id, git_repo, git_branch, backend, created_at, last_active,
		       message_count, total_tokens, status, completed_at
		FROM sessions WHERE session_id = ?
	`
	var session Session
	var completed sql.NullTime
	err := s.db.QueryRow(query, sessionID).Scan(
		&session.ID,
		&session.GitRepo,
		&session.GitBranch,
		&session.Backend,
		&session.CreatedAt,
		&session.LastActive,
		&session.MessageCount,
		&session.TotalTokens,
		&session.Status,
		&completed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "get session").
			WithContext("session_id", sessionID)
	}
	if completed.Valid {
		session.CompletedAt = &completed.Time
	}
	return &session, nil
}

// EnsureSession creates a minimal session record if it doesn't exist.
func (s *Store) EnsureSession(sessionID string) error {
	existing, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now()
	return s.CreateSession(&Session{
		ID:         sessionID,
		CreatedAt:  now,
		LastActive: now,
		Status:     SessionStatusActive,
	})
}

// ListSessions returns sessions ordered by last active time, newest
// first.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	query := `
		SELECT session_id, git_repo, git_branch, backend, created_at, last_active,
		       message_count, total_tokens, status, completed_at
		FROM sessions
		ORDER BY last_active DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "list sessions")
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var session Session
		var completed sql.NullTime
		if err := rows.Scan(
			&session.ID,
			&session.GitRepo,
			&session.GitBranch,
			&session.Backend,
			&session.CreatedAt,
			&session.LastActive,
			&session.MessageCount,
			&session.TotalTokens,
			&session.Status,
			&completed,
		); err != nil {
			return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "scan session row")
		}
		if completed.Valid {
			session.CompletedAt = &completed.Time
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeHistoryRead, "list sessions")
	}
	return sessions, nil
}

// TouchSession updates the last active timestamp.
func (s *Store) TouchSession(sessionID string) error {
	err := s.execWithRetry(
		`UPDATE sessions SET last_active = ? WHERE session_id = ?`,
		time.Now(), sessionID,
	)
	if err != nil {
		return terrors.Wrap(err, terrors.ErrCodeHistoryWrite, "touch session").
			WithContext("session_id", sessionID)
	}
	return nil
}

// SetSessionStatus updates a session's status; completing a session also
// stamps completed_at.
func (s *Store) SetSessionStatus(sessionID, status string) error {
	status = strings.TrimSpace(strings.ToLower(status))

	var err error
	if status == SessionStatusCompleted {
		err = s.execWithRetry(
			`UPDATE sessions SET status = ?, completed_at = ? WHERE session_id = ?`,
			status, time.Now(), sessionID,
		)
	} else {
		err = s.execWithRetry(
			`UPDATE sessions SET status = ?, completed_at = NULL WHERE session_id = ?`,
			status, sessionID,
		)
	}
	if err != nil {
		return terrors.Wrap(err, terrors.ErrCodeHistoryWrite, "set session status").
			WithContext("session_id", sessionID).
			WithContext("status", status)
	}
	return nil
}

// AddSessionUsage increments the message and token counters and bumps
// last active.
func (s *Store) AddSessionUsage(sessionID string, messages, tokens int) error {
	err := s.execWithRetry(`
		UPDATE sessions
		SET message_count = message_count + ?, total_tokens = total_tokens + ?, last_active = ?
		WHERE session_id = ?
	`, messages, tokens, time.Now(), sessionID)
	if err != nil {
		return terrors.Wrap(err, terrors.ErrCodeHistoryWrite, "add session usage").
			WithContext("session_id", sessionID)
	}
	return nil
}
