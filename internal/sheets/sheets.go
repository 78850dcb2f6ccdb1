// Package sheets reads process routings from and writes work order boards to
// Excel workbooks.
package sheets

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"wotrack/internal/models"
	"wotrack/internal/production"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrEmptyRouting is returned when a routing sheet has a header but no processes.
var ErrEmptyRouting = errors.New("sheets: routing has no process rows")

// routing column aliases, matched case-insensitively
var routingColumns = map[string][]string{
	"sequence":    {"sequence", "seq", "step"},
	"name":        {"process", "name", "process name"},
	"responsible": {"responsible", "default responsible", "owner"},
	"description": {"description", "notes"},
}

// ReadProcessRoutings parses the first sheet of a workbook into process
// templates. The first row is the header; Sequence and Process columns are
// required, Responsible and Description are optional. Blank rows are skipped.
func ReadProcessRoutings(r io.Reader) ([]production.ProcessInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheets: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyRouting
	}

	cols := locateColumns(rows[0])
	for _, required := range []string{"sequence", "name"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("sheets: %s: missing %q column", sheet, routingColumns[required][0])
		}
	}

	var out []production.ProcessInput
	for i, row := range rows[1:] {
		line := i + 2
		cell := func(key string) string {
			idx, ok := cols[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if cell("sequence") == "" && cell("name") == "" {
			continue
		}
		seq, err := strconv.Atoi(cell("sequence"))
		if err != nil {
			return nil, fmt.Errorf("sheets: %s row %d: sequence %q is not an integer", sheet, line, cell("sequence"))
		}
		out = append(out, production.ProcessInput{
			Name:               cell("name"),
			Sequence:           seq,
			DefaultResponsible: cell("responsible"),
			Description:        cell("description"),
		})
	}
	if len(out) == 0 {
		return nil, ErrEmptyRouting
	}
	return out, nil
}

func locateColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for idx, title := range header {
		title = strings.ToLower(strings.TrimSpace(title))
		for key, aliases := range routingColumns {
			if _, seen := cols[key]; seen {
				continue
			}
			for _, alias := range aliases {
				if title == alias {
					cols[key] = idx
				}
			}
		}
	}
	return cols
}

var boardHeaders = []string{
	"Component", "Seq", "Process", "Pool", "In Use", "Completed", "Allowed", "Status", "Responsible", "Completion Date",
}

// WriteBoard writes a work order's process board, and its stages when
// given, as an xlsx workbook.
func WriteBoard(w io.Writer, rows []models.BoardRow, stages []models.WorkOrderStage) error {
	f := excelize.NewFile()
	defer f.Close()

	const boardSheet = "Board"
	index, err := f.NewSheet(boardSheet)
	if err != nil {
		return fmt.Errorf("sheets: create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("sheets: header style: %w", err)
	}

	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{
			r.ComponentName, r.Sequence, r.ProcessName, r.MaterialPool, r.InUseQuantity,
			r.CompletedQuantity, r.AllowedQuantity, string(r.Status), deref(r.ResponsiblePerson), deref(r.CompletionDate),
		})
	}
	if err := writeTable(f, boardSheet, headerStyle, boardHeaders, data); err != nil {
		return err
	}

	if len(stages) > 0 {
		const stageSheet = "Stages"
		if _, err := f.NewSheet(stageSheet); err != nil {
			return fmt.Errorf("sheets: create sheet: %w", err)
		}
		stageData := make([][]any, 0, len(stages))
		for _, s := range stages {
			stageData = append(stageData, []any{string(s.StageName), s.StageDate})
		}
		if err := writeTable(f, stageSheet, headerStyle, []string{"Stage", "Date"}, stageData); err != nil {
			return err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("sheets: drop default sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("sheets: write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, headerStyle int, headers []string, data [][]any) error {
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("sheets: %s header: %w", sheet, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("sheets: %s header style: %w", sheet, err)
		}
	}
	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("sheets: %s %s: %w", sheet, cell, err)
			}
		}
	}
	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, 15)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
