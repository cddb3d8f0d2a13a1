package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeCSVCell(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"seller_name", "Tokyo Books", "Tokyo Books"},
		{"japanese", "トーキョー商店", "トーキョー商店"},
		{"number", "1980", "1980"},
		{"internal_equal", "A=B", "A=B"},
		{"hash", "#1 seller", "#1 seller"},

		{"formula_equal", "=HYPERLINK(\"x\")", "'=HYPERLINK(\"x\")"},
		{"formula_plus", "+81 3 0000", "'+81 3 0000"},
		{"formula_minus", "-10%", "'-10%"},
		{"formula_at", "@SUM(A:A)", "'@SUM(A:A)"},
		{"pipe", "|cmd", "'|cmd"},
		{"percent", "%PATH%", "'%PATH%"},

		{"tab_start", "\t=EXEC()", "'\t=EXEC()"},
		{"newline_start", "\n=X()", "'\n=X()"},
		{"carriage_return", "\r=X()", "'\r=X()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EscapeCSVCell(tt.input))
		})
	}
}

func TestEscapeCSVRows(t *testing.T) {
	rows := [][]string{
		{"B000000001", "=cmd", "1980"},
		{"B000000002", "shop", "-"},
	}
	assert.Equal(t, [][]string{
		{"B000000001", "'=cmd", "1980"},
		{"B000000002", "shop", "'-"},
	}, EscapeCSVRows(rows))

	assert.Equal(t, []string{"run_id", "product_id"}, SafeCSVHeaders([]string{"run_id", "product_id"}))
	assert.Empty(t, EscapeCSVRows(nil))
}

func BenchmarkEscapeCSVRow(b *testing.B) {
	row := SummaryHeaders
	for i := 0; i < b.N; i++ {
		_ = EscapeCSVRow(row)
	}
}
