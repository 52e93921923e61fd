package summary

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Column is one of the fixed columns of the summary table
type Column int

const (
	ColumnName Column = iota
	ColumnDescription
	ColumnPopularity
	ColumnInsiderTips
	ColumnLatitude
	ColumnLongitude
	columnCount
)

var columnHeaders = [columnCount]string{
	"Name",
	"Description",
	"Popularity",
	"Insider Tips",
	"Latitude",
	"Longitude",
}

func (c Column) String() string {
	return columnHeaders[c]
}

// headerAliases maps normalised header text to the column it means
var headerAliases = map[string]Column{
	"name":         ColumnName,
	"place":        ColumnName,
	"place name":   ColumnName,
	"attraction":   ColumnName,
	"description":  ColumnDescription,
	"details":      ColumnDescription,
	"about":        ColumnDescription,
	"popularity":   ColumnPopularity,
	"best for":     ColumnPopularity,
	"best-for":     ColumnPopularity,
	"insider tips": ColumnInsiderTips,
	"insider tip":  ColumnInsiderTips,
	"tips":         ColumnInsiderTips,
	"tip":          ColumnInsiderTips,
	"latitude":     ColumnLatitude,
	"lat":          ColumnLatitude,
	"longitude":    ColumnLongitude,
	"lng":          ColumnLongitude,
	"lon":          ColumnLongitude,
	"long":         ColumnLongitude,
}

// requiredColumns must all be present for a table to be taken as the summary table
var requiredColumns = []Column{ColumnName, ColumnLatitude, ColumnLongitude}

// Table is the summary table normalised to the fixed columns. Every row has exactly one cell per column.
type Table struct {
	Rows [][columnCount]string
}

// Markdown renders the table with the canonical headers
func (t *Table) Markdown() string {
	sb := new(strings.Builder)

	sb.WriteString("|")
	for _, header := range columnHeaders {
		sb.WriteString(" " + header + " |")
	}
	sb.WriteString("\n|")
	for range columnHeaders {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		sb.WriteString("|")
		for _, cell := range row {
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

var separatorCellRegexp = regexp.MustCompile(`^:?-{1,}:?$`)

func normaliseHeader(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.Trim(text, "*_` ")
	return strings.Join(strings.Fields(text), " ")
}

// splitRow splits a Markdown table row into trimmed cells. An escaped pipe ("\|") stays inside its cell.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}

	var cells []string
	current := new(strings.Builder)
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' && i+1 < len(line) && line[i+1] == '|' {
			current.WriteByte('|')
			i++
			continue
		}
		if line[i] == '|' {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteByte(line[i])
	}
	cells = append(cells, strings.TrimSpace(current.String()))

	return cells
}

func isSeparatorRow(line string) bool {
	cells := splitRow(line)
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if !separatorCellRegexp.MatchString(strings.ReplaceAll(cell, " ", "")) {
			return false
		}
	}
	return true
}

func isTableLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

// lookupHeader matches a header cell against the aliases. "Popularity/Best for" style headers match on either part.
func lookupHeader(cell string) (Column, bool) {
	normalised := normaliseHeader(cell)

	column, ok := headerAliases[normalised]
	if ok {
		return column, true
	}

	for _, part := range strings.Split(normalised, "/") {
		column, ok = headerAliases[normaliseHeader(part)]
		if ok {
			return column, true
		}
	}

	return 0, false
}

// mapHeader returns, for each source column, the fixed column it maps to (or -1),
// and whether all the required columns were found
func mapHeader(cells []string) ([]Column, bool) {
	mapping := make([]Column, len(cells))
	found := make(map[Column]bool)

	for i, cell := range cells {
		column, ok := lookupHeader(cell)
		if !ok || found[column] {
			mapping[i] = -1
			continue
		}
		mapping[i] = column
		found[column] = true
	}

	for _, required := range requiredColumns {
		if !found[required] {
			return nil, false
		}
	}

	return mapping, true
}

type tableSpan struct {
	start, end int // line indexes, end exclusive
	table      *Table
}

// findTable locates the first Markdown table whose header maps onto the fixed columns, and rebuilds it normalised.
// Missing columns get empty cells, renamed or reordered ones are moved to their fixed position.
func findTable(lines []string) *tableSpan {
	for i := 0; i+1 < len(lines); i++ {
		if !isTableLine(lines[i]) || !isSeparatorRow(lines[i+1]) {
			continue
		}
		if i > 0 && isTableLine(lines[i-1]) {
			// not the first line of a table
			continue
		}

		mapping, ok := mapHeader(splitRow(lines[i]))
		if !ok {
			continue
		}

		end := i + 2
		table := new(Table)
		for ; end < len(lines) && isTableLine(lines[end]); end++ {
			cells := splitRow(lines[end])

			var row [columnCount]string
			for sourceIndex, column := range mapping {
				if column < 0 || sourceIndex >= len(cells) {
					continue
				}
				row[column] = cells[sourceIndex]
			}
			table.Rows = append(table.Rows, row)
		}

		return &tableSpan{start: i, end: end, table: table}
	}

	return nil
}

var leadingNumberRegexp = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseLeadingFloat parses the number at the start of s, ignoring anything after it ("47.37°N" is 47.37).
// It does not skip markup: "**47.37**" is not a number.
func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimLeft(s, " \t\n\r")

	match := leadingNumberRegexp.FindString(s)
	if match == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}

	return value, true
}
