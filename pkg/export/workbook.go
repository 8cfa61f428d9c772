package export

import (
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/history"
)

const (
	summarySheet    = "Summary"
	transcriptSheet = "Transcript"

	// Excel rejects cell text past this length.
	excelCellLimit = 32767
)

// WriteWorkbook writes the session summary and full transcript as an
// XLSX workbook.
func WriteWorkbook(path string, session *history.Session, entries []history.TranscriptEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeExportRender, "prepare workbook")
	}
	if err := writeSummarySheet(f, session, entries); err != nil {
		return err
	}
	if err := writeTranscriptSheet(f, entries); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeExportWrite, "save workbook").
			WithContext("path", path)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, session *history.Session, entries []history.TranscriptEntry) error {
	var rows [][]any
	if session != nil {
		rows = [][]any{
			{"Session", session.ID},
			{"Started", session.CreatedAt.Format(time.RFC3339)},
			{"Last active", session.LastActive.Format(time.RFC3339)},
			{"Backend", session.Backend},
			{"Workspace", workspaceLabel(session)},
			{"Status", session.Status},
			{"Messages", session.MessageCount},
			{"Tokens", session.TotalTokens},
		}
	} else {
		rows = [][]any{{"Entries", len(entries)}}
	}

	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return terrors.Wrap(err, terrors.ErrCodeExportRender, "summary cell name")
			}
			if err := f.SetCellValue(summarySheet, cell, value); err != nil {
				return terrors.Wrap(err, terrors.ErrCodeExportRender, "write summary cell")
			}
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 14)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	return nil
}

func writeTranscriptSheet(f *excelize.File, entries []history.TranscriptEntry) error {
	if _, err := f.NewSheet(transcriptSheet); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeExportRender, "create transcript sheet")
	}

	header := []any{"Time", "Kind", "Tokens", "Content"}
	for j, name := range header {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return terrors.Wrap(err, terrors.ErrCodeExportRender, "transcript cell name")
		}
		if err := f.SetCellValue(transcriptSheet, cell, name); err != nil {
			return terrors.Wrap(err, terrors.ErrCodeExportRender, "write transcript header")
		}
	}

	for i, entry := range entries {
		content := entry.Content
		if len(content) > excelCellLimit {
			cut := excelCellLimit
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}

		row := []any{
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.Kind,
			entry.Tokens,
			content,
		}
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return terrors.Wrap(err, terrors.ErrCodeExportRender, "transcript cell name")
			}
			if err := f.SetCellValue(transcriptSheet, cell, value); err != nil {
				return terrors.Wrap(err, terrors.ErrCodeExportRender, "write transcript cell")
			}
		}
	}

	_ = f.SetColWidth(transcriptSheet, "A", "A", 20)
	_ = f.SetColWidth(transcriptSheet, "D", "D", 80)
	return nil
}
