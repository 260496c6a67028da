package diff

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sprite-ai/revroom/internal/model"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// Parse converts the hunks of a single file's unified diff into render
// records. It never fails: empty input yields no records, malformed hunk
// headers keep the previous line counters, and lines with an unknown
// prefix are skipped.
func Parse(patch string) []model.PatchLine {
	if patch == "" {
		return nil
	}

	var (
		lines   []model.PatchLine
		oldLine int
		newLine int
	)

	for _, raw := range strings.Split(patch, "\n") {
		line := strings.TrimSuffix(raw, "\r")

		switch {
		case strings.HasPrefix(line, "@@"):
			if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
				a, errA := strconv.Atoi(m[1])
				c, errC := strconv.Atoi(m[2])
				if errA == nil && errC == nil {
					oldLine, newLine = a, c
				}
			}
			lines = append(lines, model.PatchLine{Kind: model.LineHunkHeader, Text: line})

		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			lines = append(lines, model.PatchLine{Kind: model.LineAdd, Text: line[1:], NewLineNumber: newLine})
			newLine++

		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			lines = append(lines, model.PatchLine{Kind: model.LineRemove, Text: line[1:], OldLineNumber: oldLine})
			oldLine++

		case strings.HasPrefix(line, " "):
			lines = append(lines, model.PatchLine{
				Kind:          model.LineContext,
				Text:          line[1:],
				OldLineNumber: oldLine,
				NewLineNumber: newLine,
			})
			oldLine++
			newLine++
		}
	}

	return lines
}

// HunkStarts returns the indexes of hunk-header records, in order.
func HunkStarts(lines []model.PatchLine) []int {
	var idx []int
	for i, l := range lines {
		if l.Kind == model.LineHunkHeader {
			idx = append(idx, i)
		}
	}
	return idx
}

// CommentLine returns the line number a comment on the record attaches
// to, and the side it belongs to. Hunk headers are not commentable.
func CommentLine(l model.PatchLine) (int, model.Side, bool) {
	switch l.Kind {
	case model.LineAdd, model.LineContext:
		return l.NewLineNumber, model.SideRight, true
	case model.LineRemove:
		return l.OldLineNumber, model.SideLeft, true
	}
	return 0, "", false
}
