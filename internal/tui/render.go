package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/revroom/internal/diff"
	"github.com/sprite-ai/revroom/internal/model"
)

// renderedLine is a single patch record ready for display.
type renderedLine struct {
	model.PatchLine

	// Gutter is the directional glyph from the unified projection.
	Gutter string

	// Syntax highlighting tokens (nil = no highlighting)
	Tokens []diff.Token

	// Unresolved comments attached to this record's line and side.
	Comments int
}

type commentKey struct {
	line int
	side model.Side
}

// renderPatch pairs each unified row with its highlighting and comment
// count.
func renderPatch(filename string, rows []diff.UnifiedRow, comments []model.Comment) []renderedLine {
	counts := make(map[commentKey]int)
	for _, c := range comments {
		if !c.Resolved {
			counts[commentKey{c.LineNumber, c.Side}]++
		}
	}

	lines := make([]model.PatchLine, len(rows))
	for i, r := range rows {
		lines[i] = r.PatchLine
	}
	highlighted := diff.HighlightPatch(filename, lines)

	out := make([]renderedLine, len(rows))
	for i, r := range rows {
		rl := renderedLine{PatchLine: r.PatchLine, Gutter: r.Gutter, Tokens: highlighted[i].Tokens}
		if n, side, ok := diff.CommentLine(r.PatchLine); ok {
			rl.Comments = counts[commentKey{n, side}]
		}
		out[i] = rl
	}
	return out
}

// renderHighlightedContent renders line content with syntax tokens.
func renderHighlightedContent(rl renderedLine, prefix string) string {
	if len(rl.Tokens) == 0 {
		return prefix + rl.Text
	}

	var b strings.Builder
	b.WriteString(prefix)
	for _, tok := range rl.Tokens {
		if tok.Color != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		} else {
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

func numCell(n int) string {
	if n <= 0 {
		return lineNumberStyle.Render("")
	}
	return lineNumberStyle.Render(fmt.Sprintf("%d", n))
}

func badge(n int) string {
	if n == 0 {
		return ""
	}
	return " " + commentBadgeStyle.Render(fmt.Sprintf("[%d]", n))
}

// styleLine applies styling to a rendered line for unified view.
func styleLine(rl renderedLine, width int) string {
	if rl.Kind == model.LineHunkHeader {
		return hunkHeaderStyle.Render(truncate(rl.Text, width))
	}

	lineNums := numCell(rl.OldLineNumber) + " " + numCell(rl.NewLineNumber)
	maxContent := width - 12

	var content string
	switch rl.Kind {
	case model.LineAdd:
		content = addedLineStyle.Render(truncate(rl.Gutter+rl.Text, maxContent))
	case model.LineRemove:
		content = deletedLineStyle.Render(truncate(rl.Gutter+rl.Text, maxContent))
	default:
		if lipgloss.Width(rl.Gutter+rl.Text) > maxContent {
			content = contextLineStyle.Render(truncate(rl.Gutter+rl.Text, maxContent))
		} else {
			// Context lines get syntax highlighting instead.
			content = renderHighlightedContent(rl, rl.Gutter)
		}
	}

	return lineNums + " " + content + badge(rl.Comments)
}

// styleSplitCell renders one record in the left or right column of the
// split view. The comment badge appears only on the side the comments
// are attached to.
func styleSplitCell(rl renderedLine, width int, side model.Side) string {
	if rl.Kind == model.LineHunkHeader {
		return hunkHeaderStyle.Render(truncate(rl.Text, width))
	}

	num := rl.NewLineNumber
	if side == model.SideLeft {
		num = rl.OldLineNumber
	}
	content := rl.Gutter + truncate(rl.Text, width-7)

	var cell string
	switch rl.Kind {
	case model.LineAdd:
		cell = numCell(num) + " " + addedLineStyle.Render(content)
	case model.LineRemove:
		cell = numCell(num) + " " + deletedLineStyle.Render(content)
	default:
		cell = numCell(num) + " " + contextLineStyle.Render(content)
	}
	if _, s, ok := diff.CommentLine(rl.PatchLine); ok && s == side {
		cell += badge(rl.Comments)
	}
	return cell
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
