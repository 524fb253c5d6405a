// Package sheets moves assessment data in and out of spreadsheets: response imports
// from .xlsx or .csv and roadmap exports to .xlsx.
package sheets

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gapline/internal/domain"
)

// ReadResponses parses a response sheet. The first row is a header naming the criterion,
// current level, target level and importance columns; blank cells mean "not answered".
// name selects the format by extension.
func ReadResponses(name string, r io.Reader) ([]domain.CriterionResponse, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("read sheet: %w", err)
		}
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		var err error
		rows, err = cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file type %q: use .xlsx or .csv", filepath.Ext(name))
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet needs a header row and at least one response")
	}

	header := rows[0]
	codeIdx := findIndex(header, "criteria_code", "criterion", "code")
	asIsIdx := findIndex(header, "as_is", "as_is_level", "current")
	toBeIdx := findIndex(header, "to_be", "to_be_level", "target")
	importanceIdx := findIndex(header, "importance", "weight")
	var missing []string
	for col, idx := range map[string]int{"criteria_code": codeIdx, "as_is": asIsIdx, "to_be": toBeIdx, "importance": importanceIdx} {
		if idx == -1 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var out []domain.CriterionResponse
	for i, row := range rows[1:] {
		line := i + 2
		code := cell(row, codeIdx)
		if code == "" {
			continue
		}
		resp := domain.CriterionResponse{CriteriaCode: code}
		var err error
		if resp.AsIsLevel, err = level(row, asIsIdx); err != nil {
			return nil, fmt.Errorf("row %d as_is: %w", line, err)
		}
		if resp.ToBeLevel, err = level(row, toBeIdx); err != nil {
			return nil, fmt.Errorf("row %d to_be: %w", line, err)
		}
		if resp.Importance, err = level(row, importanceIdx); err != nil {
			return nil, fmt.Errorf("row %d importance: %w", line, err)
		}
		out = append(out, resp)
	}
	return out, nil
}

func findIndex(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range header {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func level(row []string, idx int) (*int, error) {
	raw := cell(row, idx)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%q is not a whole number", raw)
	}
	if v < 1 || v > 5 {
		return nil, fmt.Errorf("%d outside [1,5]", v)
	}
	return &v, nil
}
