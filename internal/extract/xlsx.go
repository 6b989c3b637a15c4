package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX renders each sheet as a plain-text table, one "v1 | v2" line
// per row, sheets separated by their name header.
func (e *Extractor) extractXLSX(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			e.logger.Warn().Err(err).Str("sheet", sheet).Msg("Skipping unreadable sheet")
			continue
		}

		var lines []string
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if strings.Trim(line, " |") == "" {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(sheet)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("xlsx has no cell content")
	}
	return &Result{Text: sb.String(), Method: "excelize"}, nil
}
