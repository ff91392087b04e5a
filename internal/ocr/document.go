package ocr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opendental/eob-processor/internal/models"
)

// assemble turns a raw analysis result into pages of text plus rendered
// tables. Tables are attached to the page of their first bounding
// region; a table with no region defaults to page 1.
func assemble(result *analyzeResult) *models.ExtractedDocument {
	pageText := map[int]string{}
	for idx, page := range result.Pages {
		number := page.PageNumber
		if number == 0 {
			number = idx + 1
		}
		words := make([]string, 0, len(page.Words))
		for _, w := range page.Words {
			if w.Content != "" {
				words = append(words, w.Content)
			}
		}
		pageText[number] = strings.Join(words, " ")
	}

	tablesByPage := map[int][]string{}
	for idx, table := range result.Tables {
		number := 1
		if len(table.BoundingRegions) > 0 {
			number = table.BoundingRegions[0].PageNumber
		}
		tablesByPage[number] = append(tablesByPage[number], formatTable(table, idx+1))
	}

	numbers := map[int]bool{}
	for n := range pageText {
		numbers[n] = true
	}
	for n := range tablesByPage {
		numbers[n] = true
	}
	if len(numbers) == 0 {
		numbers[1] = true
	}

	ordered := make([]int, 0, len(numbers))
	for n := range numbers {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)

	doc := &models.ExtractedDocument{Pages: make([]models.Page, 0, len(ordered))}
	for _, n := range ordered {
		doc.Pages = append(doc.Pages, models.Page{
			Number: n,
			Text:   strings.TrimSpace(pageText[n]),
			Tables: tablesByPage[n],
		})
	}
	return doc
}

// formatTable renders a table as a header line followed by one
// pipe-delimited line per row.
func formatTable(table analyzeTable, index int) string {
	cells := make(map[[2]int]string, len(table.Cells))
	for _, cell := range table.Cells {
		content := strings.TrimSpace(strings.ReplaceAll(cell.Content, "\n", " "))
		cells[[2]int{cell.RowIndex, cell.ColumnIndex}] = content
	}

	lines := []string{fmt.Sprintf("Table %d (rows=%d, cols=%d)", index, table.RowCount, table.ColumnCount)}
	for row := 0; row < table.RowCount; row++ {
		values := make([]string, table.ColumnCount)
		for col := 0; col < table.ColumnCount; col++ {
			values[col] = cells[[2]int{row, col}]
		}
		lines = append(lines, strings.Trim(strings.Join(values, "|"), "|"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
