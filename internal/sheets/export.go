package sheets

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"gapline/internal/prioritize"
)

var roadmapHeader = []any{"Rank", "Code", "Title", "Quadrant", "Priority", "Weighted need", "Item score", "Impact", "Effort"}

// OverflowSheet names the sheet listing items that found no room in any phase.
const OverflowSheet = "Overflow"

// PhaseSheet names the sheet of a phase.
func PhaseSheet(p prioritize.Phase) string {
	return "Phase " + string(p)
}

// WriteRoadmap writes one sheet per phase plus an overflow sheet as an .xlsx workbook.
func WriteRoadmap(w io.Writer, rm prioritize.Roadmap) error {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, b := range rm.Phases {
		name := PhaseSheet(b.Phase)
		if first {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := f.SetCellValue(name, "A1", fmt.Sprintf("%s (%s)", b.Title, b.Wave)); err != nil {
			return err
		}
		if err := f.SetCellValue(name, "A2", b.Subtitle); err != nil {
			return err
		}
		if err := writeItems(f, name, 4, b.Items); err != nil {
			return err
		}
	}
	if _, err := f.NewSheet(OverflowSheet); err != nil {
		return err
	}
	if err := writeItems(f, OverflowSheet, 1, rm.Overflow); err != nil {
		return err
	}
	return f.Write(w)
}

func writeItems(f *excelize.File, sheet string, startRow int, items []prioritize.ItemScore) error {
	cell, err := excelize.CoordinatesToCellName(1, startRow)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &roadmapHeader); err != nil {
		return err
	}
	for i, it := range items {
		cell, err := excelize.CoordinatesToCellName(1, startRow+1+i)
		if err != nil {
			return err
		}
		row := []any{it.Rank, it.Code, it.Title, it.Quadrant.Label(), string(it.Priority), it.WeightedNeed, it.ItemScore, it.ImpactScore, it.EffortScore}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
