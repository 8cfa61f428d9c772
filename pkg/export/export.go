// Package export renders session transcripts into shareable formats:
// a markdown document, standalone HTML with syntax-highlighted code
// blocks, and an XLSX workbook summarizing the session.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/history"
)

// Markdown assembles the transcript into one markdown document. Input
// lines are fenced verbatim; response entries are markdown already and
// pass through untouched so their own code blocks survive.
func Markdown(session *history.Session, entries []history.TranscriptEntry) string {
	var b strings.Builder

	if session != nil && session.ID != "" {
		fmt.Fprintf(&b, "# Session %s\n\n", session.ID)
		if !session.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "- Started: %s\n", session.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		if label := workspaceLabel(session); label != "" {
			fmt.Fprintf(&b, "- Workspace: %s\n", label)
		}
		if session.Backend != "" {
			fmt.Fprintf(&b, "- Backend: %s\n", session.Backend)
		}
		fmt.Fprintf(&b, "- Messages: %d\n", session.MessageCount)
		fmt.Fprintf(&b, "- Tokens: %d\n\n", session.TotalTokens)
	} else {
		b.WriteString("# Session\n\n")
	}

	for _, entry := range entries {
		stamp := entry.CreatedAt.Format("15:04:05")
		switch entry.Kind {
		case history.EntryInput:
			fmt.Fprintf(&b, "### Input (%s)\n\n```text\n%s\n```\n\n", stamp, entry.Content)
		case history.EntryStatus:
			fmt.Fprintf(&b, "> %s\n\n", entry.Content)
		default:
			fmt.Fprintf(&b, "### Response (%s)\n\n%s\n\n", stamp, strings.TrimRight(entry.Content, "\n"))
		}
	}

	return b.String()
}

// WriteFile exports the transcript to path, picking the format from
// the file extension.
func WriteFile(path string, session *history.Session, entries []history.TranscriptEntry) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return writeBytes(path, []byte(Markdown(session, entries)))
	case ".html", ".htm":
		data, err := HTML(session, entries)
		if err != nil {
			return err
		}
		return writeBytes(path, data)
	case ".xlsx":
		return WriteWorkbook(path, session, entries)
	default:
		return terrors.New(terrors.ErrCodeExportWrite,
			fmt.Sprintf("unsupported export format %q", filepath.Ext(path))).
			WithRemediation("Use a .md, .html, or .xlsx destination.")
	}
}

func writeBytes(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeExportWrite, "write export file").
			WithContext("path", path)
	}
	return nil
}

func workspaceLabel(session *history.Session) string {
	switch {
	case session.GitRepo == "":
		return ""
	case session.GitBranch == "":
		return session.GitRepo
	default:
		return session.GitRepo + "@" + session.GitBranch
	}
}
