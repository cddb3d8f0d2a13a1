package report

import "strings"

// formulaLeaders are first characters that spreadsheet apps may evaluate.
const formulaLeaders = "=+-@|%\t\r\n"

// EscapeCSVCell prefixes a quote to cells a spreadsheet would read as a
// formula.
func EscapeCSVCell(value string) string {
	if value == "" || !strings.ContainsRune(formulaLeaders, rune(value[0])) {
		return value
	}
	return "'" + value
}

// EscapeCSVRow escapes all cells in a row
func EscapeCSVRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCSVCell(cell)
	}
	return escaped
}

// EscapeCSVRows escapes all cells in multiple rows
func EscapeCSVRows(rows [][]string) [][]string {
	escaped := make([][]string, len(rows))
	for i, row := range rows {
		escaped[i] = EscapeCSVRow(row)
	}
	return escaped
}

// SafeCSVHeaders escapes a header row.
func SafeCSVHeaders(headers []string) []string {
	return EscapeCSVRow(headers)
}
