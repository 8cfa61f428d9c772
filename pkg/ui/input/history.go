package input

import "strings"

// History is a bounded list of submitted lines with a navigation
// cursor. The cursor starts past the newest entry; Up walks toward the
// oldest, Down walks back and reports false once it passes the newest
// again.
type History struct {
	entries []string
	limit   int
	cursor  int
}

// DefaultHistoryLimit bounds history growth when no limit is given.
const DefaultHistoryLimit = 100

// NewHistory creates a history bounded to limit entries. A limit of
// zero or less uses the default.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Add appends an entry and resets the cursor past the newest. Lines
// empty after trimming and consecutive duplicates are not recorded.
// The oldest entry is evicted once the limit is reached.
func (h *History) Add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		h.ResetCursor()
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == entry {
		h.ResetCursor()
		return
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.ResetCursor()
}

// Up moves toward the oldest entry. Reports false when there is no
// older entry.
func (h *History) Up() (string, bool) {
	if h.cursor == 0 {
		return "", false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Down moves toward the newest entry. Reports false once the cursor
// passes the newest, which is the caller's cue to restore the draft.
func (h *History) Down() (string, bool) {
	if h.cursor >= len(h.entries) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.entries) {
		return "", false
	}
	return h.entries[h.cursor], true
}

// ResetCursor moves the cursor past the newest entry.
func (h *History) ResetCursor() {
	h.cursor = len(h.entries)
}

// Browsing reports whether the cursor is on a history entry.
func (h *History) Browsing() bool {
	return h.cursor < len(h.entries)
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the stored entries, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}
