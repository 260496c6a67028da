// Package diff turns unified diffs into the line model rendered by the
// review views.
package diff

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/sprite-ai/revroom/internal/model"
)

// SplitFiles reads a multi-file git diff and returns one FileEntry per
// changed file. Each entry's Patch holds only that file's hunks, in the
// form Parse consumes.
func SplitFiles(raw string) ([]model.FileEntry, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	files := make([]model.FileEntry, 0, len(parsed))
	for _, f := range parsed {
		fe := model.FileEntry{Filename: fileName(f)}

		var b strings.Builder
		for _, frag := range f.TextFragments {
			b.WriteString(formatHunkHeader(frag))
			b.WriteByte('\n')
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					fe.Additions++
					b.WriteByte('+')
				case gitdiff.OpDelete:
					fe.Deletions++
					b.WriteByte('-')
				default:
					b.WriteByte(' ')
				}
				b.WriteString(strings.TrimRight(line.Line, "\r\n"))
				b.WriteByte('\n')
			}
		}
		fe.Patch = strings.TrimSuffix(b.String(), "\n")

		files = append(files, fe)
	}

	return files, nil
}

func fileName(f *gitdiff.File) string {
	if f.IsDelete || f.NewName == "" {
		return f.OldName
	}
	return f.NewName
}

func formatHunkHeader(frag *gitdiff.TextFragment) string {
	old := fmt.Sprintf("-%d", frag.OldPosition)
	if frag.OldLines != 1 {
		old += fmt.Sprintf(",%d", frag.OldLines)
	}
	new := fmt.Sprintf("+%d", frag.NewPosition)
	if frag.NewLines != 1 {
		new += fmt.Sprintf(",%d", frag.NewLines)
	}

	header := fmt.Sprintf("@@ %s %s @@", old, new)
	if frag.Comment != "" {
		header += " " + frag.Comment
	}
	return header
}

// Totals returns aggregate statistics for a set of files.
func Totals(files []model.FileEntry) (n, added, deleted int) {
	n = len(files)
	for _, f := range files {
		added += f.Additions
		deleted += f.Deletions
	}
	return
}

// GitDiff runs `git diff` with the given arguments and returns the raw output.
func GitDiff(repoDir string, args ...string) (string, error) {
	cmdArgs := append([]string{"diff"}, args...)
	cmd := exec.Command("git", cmdArgs...)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}

	return string(out), nil
}

// GitDiffHead returns the diff of HEAD against its parent.
func GitDiffHead(repoDir string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), "HEAD~1", "HEAD")
}

// GitDiffRange returns the diff for a commit range like "main...HEAD".
func GitDiffRange(repoDir string, commitRange string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), commitRange)
}
