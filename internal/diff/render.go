package diff

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sprite-ai/revroom/internal/model"
)

// UnifiedRow is one row of the unified projection.
type UnifiedRow struct {
	model.PatchLine
	Gutter string `json:"gutter"`
}

// SplitView holds the two columns of the split projection. Left is the
// pre-image (everything but adds), Right the post-image (everything but
// removes).
type SplitView struct {
	Left  []model.PatchLine `json:"left"`
	Right []model.PatchLine `json:"right"`
}

// Gutter returns the directional glyph for a line kind.
func Gutter(k model.LineKind) string {
	switch k {
	case model.LineAdd:
		return "+"
	case model.LineRemove:
		return "-"
	case model.LineHunkHeader:
		return "@"
	default:
		return " "
	}
}

// Unified returns every record in original order with its gutter glyph.
func Unified(lines []model.PatchLine) []UnifiedRow {
	rows := make([]UnifiedRow, len(lines))
	for i, l := range lines {
		rows[i] = UnifiedRow{PatchLine: l, Gutter: Gutter(l.Kind)}
	}
	return rows
}

// Split returns the two-column projection of lines.
func Split(lines []model.PatchLine) SplitView {
	var sv SplitView
	for _, l := range lines {
		if l.Kind != model.LineAdd {
			sv.Left = append(sv.Left, l)
		}
		if l.Kind != model.LineRemove {
			sv.Right = append(sv.Right, l)
		}
	}
	return sv
}

// FormatUnified renders the unified projection as plain text, one row
// per line: old number, new number, gutter, text.
func FormatUnified(lines []model.PatchLine) string {
	if len(lines) == 0 {
		return "No diff available for this file.\n"
	}
	var b strings.Builder
	for _, r := range Unified(lines) {
		row := fmt.Sprintf("%4s %4s %s %s", lineNum(r.OldLineNumber), lineNum(r.NewLineNumber), r.Gutter, r.Text)
		b.WriteString(strings.TrimRight(row, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatSplit renders the split projection as plain text, left column
// first.
func FormatSplit(lines []model.PatchLine) string {
	if len(lines) == 0 {
		return "No diff available for this file.\n"
	}
	sv := Split(lines)
	var b strings.Builder
	b.WriteString("--- left\n")
	for _, l := range sv.Left {
		writeColumnRow(&b, l.OldLineNumber, l)
	}
	b.WriteString("+++ right\n")
	for _, l := range sv.Right {
		writeColumnRow(&b, l.NewLineNumber, l)
	}
	return b.String()
}

func writeColumnRow(b *strings.Builder, num int, l model.PatchLine) {
	row := fmt.Sprintf("%4s %s %s", lineNum(num), Gutter(l.Kind), l.Text)
	b.WriteString(strings.TrimRight(row, " "))
	b.WriteByte('\n')
}

func lineNum(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
