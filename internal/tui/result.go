package tui

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/revroom/internal/model"
)

// Result holds the outcome of an interactive review session.
type Result struct {
	Visited  []string
	Comments []model.Comment

	seen map[string]bool
}

func newResult() *Result {
	return &Result{seen: make(map[string]bool)}
}

func (r *Result) visit(filename string) {
	if r.seen[filename] {
		return
	}
	r.seen[filename] = true
	r.Visited = append(r.Visited, filename)
}

func (r *Result) commented(c model.Comment) {
	r.Comments = append(r.Comments, c)
}

// Summary describes the session for printing after the TUI exits.
func (r *Result) Summary(total int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Reviewed %d of %d file(s)", len(r.Visited), total))
	if len(r.Comments) == 0 {
		b.WriteString(", no comments added.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf(", %d comment(s) added:\n", len(r.Comments)))

	for _, c := range r.Comments {
		body := strings.ReplaceAll(c.Body, "\n", " ")
		if len(body) > 60 {
			body = body[:59] + "…"
		}
		b.WriteString(fmt.Sprintf("  - %s:%d (%s) %s\n", c.Filename, c.LineNumber, c.Side, body))
	}
	return b.String()
}
