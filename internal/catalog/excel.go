package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/langfocus/pkg/models"
	"github.com/xuri/excelize/v2"
)

// SheetConfig describes where catalog data lives inside a workbook
type SheetConfig struct {
	TechniquesSheet string // id | name | definition | keywords | examples
	StatementsSheet string // id | text | category | difficulty | technique ids
	StartRow        int    // first data row (1-based), rows above are headers
}

// DefaultSheetConfig returns the default workbook layout
func DefaultSheetConfig() SheetConfig {
	return SheetConfig{
		TechniquesSheet: "Techniques",
		StatementsSheet: "Statements",
		StartRow:        2,
	}
}

const listSeparator = "|"

func readExcel(path string, cfg SheetConfig) ([]models.Technique, []models.Statement, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	var rowErrors []string

	techRows, err := f.GetRows(cfg.TechniquesSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows of %s: %w", cfg.TechniquesSheet, err)
	}
	var techniques []models.Technique
	for i, row := range techRows {
		if i < cfg.StartRow-1 || isBlank(row) {
			continue
		}
		id, err := strconv.Atoi(cell(row, 0))
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("%s row %d: invalid id %q", cfg.TechniquesSheet, i+1, cell(row, 0)))
			continue
		}
		techniques = append(techniques, models.Technique{
			ID:         id,
			Name:       cell(row, 1),
			Definition: cell(row, 2),
			Keywords:   splitList(cell(row, 3), listSeparator),
			Examples:   splitList(cell(row, 4), listSeparator),
		})
	}

	stmtRows, err := f.GetRows(cfg.StatementsSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows of %s: %w", cfg.StatementsSheet, err)
	}
	var statements []models.Statement
	for i, row := range stmtRows {
		if i < cfg.StartRow-1 || isBlank(row) {
			continue
		}
		id, err := strconv.Atoi(cell(row, 0))
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("%s row %d: invalid id %q", cfg.StatementsSheet, i+1, cell(row, 0)))
			continue
		}
		var refs []int
		for _, raw := range splitList(cell(row, 4), ",") {
			ref, err := strconv.Atoi(raw)
			if err != nil {
				rowErrors = append(rowErrors, fmt.Sprintf("%s row %d: invalid technique id %q", cfg.StatementsSheet, i+1, raw))
				continue
			}
			refs = append(refs, ref)
		}
		statements = append(statements, models.Statement{
			ID:           id,
			Text:         cell(row, 1),
			Category:     cell(row, 2),
			Difficulty:   cell(row, 3),
			TechniqueIDs: refs,
		})
	}

	if len(rowErrors) > 0 {
		return nil, nil, fmt.Errorf("failed to import %s: %s", path, strings.Join(rowErrors, "; "))
	}
	return techniques, statements, nil
}

// WriteExcel exports the catalog into a workbook readable by Load
func WriteExcel(c *Catalog, path string) error {
	cfg := DefaultSheetConfig()
	f := excelize.NewFile()
	defer f.Close()

	techIdx, err := f.NewSheet(cfg.TechniquesSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(cfg.StatementsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(techIdx)

	if err := f.SetSheetRow(cfg.TechniquesSheet, "A1", &[]interface{}{"ID", "Name", "Definition", "Keywords", "Examples"}); err != nil {
		return err
	}
	for i, t := range c.GetTechniques() {
		row := []interface{}{t.ID, t.Name, t.Definition, strings.Join(t.Keywords, listSeparator), strings.Join(t.Examples, listSeparator)}
		if err := f.SetSheetRow(cfg.TechniquesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write technique %d: %w", t.ID, err)
		}
	}

	if err := f.SetSheetRow(cfg.StatementsSheet, "A1", &[]interface{}{"ID", "Statement", "Category", "Difficulty", "Techniques"}); err != nil {
		return err
	}
	for i, s := range c.GetStatements(nil) {
		refs := make([]string, len(s.TechniqueIDs))
		for j, id := range s.TechniqueIDs {
			refs[j] = strconv.Itoa(id)
		}
		row := []interface{}{s.ID, s.Text, s.Category, s.Difficulty, strings.Join(refs, ",")}
		if err := f.SetSheetRow(cfg.StatementsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write statement %d: %w", s.ID, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
