package tui

import (
	"context"
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/revroom/internal/comments"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/presence"
	"github.com/sprite-ai/revroom/internal/session"
	"github.com/sprite-ai/revroom/internal/store"
)

const prID = "octo/widgets#7"

var testFiles = []model.FileEntry{
	{
		Filename:  "main.go",
		Additions: 2,
		Deletions: 1,
		Patch: "@@ -1,4 +1,5 @@\n" +
			" package main\n" +
			" func main() {\n" +
			"-\tprintln(\"hello\")\n" +
			"+\tprintln(\"hello world\")\n" +
			"+\tprintln(\"goodbye\")\n" +
			" }",
	},
	{
		Filename:  "util.go",
		Additions: 3,
		Patch: "@@ -0,0 +1,3 @@\n" +
			"+package main\n" +
			"+func add(a, b int) int {\n" +
			"+\treturn a + b\n" +
			"@@ -10,1 +13,1 @@\n" +
			" }",
	},
}

var testRanking = &model.RankingResponse{RankedFiles: []model.RankedFile{
	{Filename: "util.go", Rank: 1, FinalScore: 0.9, Explanation: "new arithmetic helper"},
	{Filename: "main.go", Rank: 2, FinalScore: 0.3},
}}

func setupModel(t *testing.T, ranking *model.RankingResponse) Model {
	t.Helper()
	ctrl := session.New(session.Config{
		Files:    testFiles,
		Ranking:  ranking,
		Comments: comments.NewBook(store.NewMemory(), prID),
		Author:   "ana",
	})
	m := New(context.Background(), ctrl, prID)
	// Simulate window size
	newM, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return newM.(Model)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		newM, _ := m.Update(msg)
		m = newM.(Model)
	}
	return m
}

func TestModelInit(t *testing.T) {
	m := setupModel(t, testRanking)

	if m.selectedName() != "main.go" {
		t.Errorf("expected main.go selected, got %q", m.selectedName())
	}
	if len(m.lines) != 7 {
		t.Errorf("expected 7 rendered lines, got %d", len(m.lines))
	}
}

func TestNavigation(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "n")
	if m.selectedName() != "util.go" {
		t.Errorf("expected util.go after next, got %q", m.selectedName())
	}

	// Move past end: should stay
	m = press(m, "n")
	if m.selectedName() != "util.go" {
		t.Errorf("expected util.go at end, got %q", m.selectedName())
	}

	m = press(m, "N")
	if m.selectedName() != "main.go" {
		t.Errorf("expected main.go after prev, got %q", m.selectedName())
	}
}

func TestScrolling(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "j")
	if m.scrollOffset != 1 {
		t.Errorf("expected scrollOffset 1, got %d", m.scrollOffset)
	}

	m = press(m, "k", "k")
	if m.scrollOffset != 0 {
		t.Errorf("expected scrollOffset 0 at top, got %d", m.scrollOffset)
	}

	m = press(m, "n")
	m = press(m, "]")
	if m.scrollOffset != 4 {
		t.Errorf("expected second hunk at 4, got %d", m.scrollOffset)
	}
	m = press(m, "[")
	if m.scrollOffset != 0 {
		t.Errorf("expected first hunk at 0, got %d", m.scrollOffset)
	}
}

func TestToggleView(t *testing.T) {
	m := setupModel(t, testRanking)

	if m.ctrl.ViewMode() != model.ViewUnified {
		t.Error("expected unified view by default")
	}

	m = press(m, "v")
	if m.ctrl.ViewMode() != model.ViewSplit {
		t.Error("expected split view after toggle")
	}
	if m.View() == "" {
		t.Error("expected split view to render")
	}

	m = press(m, "v")
	if m.ctrl.ViewMode() != model.ViewUnified {
		t.Error("expected unified view after second toggle")
	}
}

func TestReviewOrderAndRankJump(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "o")
	visible := m.ctrl.Visible()
	if visible[0].Filename != "util.go" {
		t.Errorf("expected util.go first in review order, got %q", visible[0].Filename)
	}
	if m.selectedName() != "main.go" {
		t.Errorf("reordering should keep the selection, got %q", m.selectedName())
	}

	m = press(m, "1")
	if m.selectedName() != "util.go" {
		t.Errorf("expected rank 1 to select util.go, got %q", m.selectedName())
	}

	m = press(m, "9")
	if !strings.Contains(m.status, "#9") {
		t.Errorf("expected status for missing rank, got %q", m.status)
	}
}

func TestMLUnavailableBanner(t *testing.T) {
	m := setupModel(t, nil)

	if !strings.Contains(m.View(), "ML ranking unavailable") {
		t.Error("expected fallback banner")
	}

	m = press(m, "o")
	if m.ctrl.ReviewOrder() {
		t.Error("review order should stay off without ranking")
	}
}

func TestAddComment(t *testing.T) {
	m := setupModel(t, testRanking)

	// Line 4 is the first added line.
	m = press(m, "j", "j", "j", "j", "c")
	if !m.commenting {
		t.Fatal("expected comment input")
	}

	m = press(m, "q")
	if !m.commenting {
		t.Fatal("q should type into the input, not quit")
	}

	m = press(m, "enter")
	if m.commenting {
		t.Fatal("expected input closed after submit")
	}
	if len(m.comments) != 1 || m.comments[0].Body != "q" {
		t.Fatalf("expected one comment with body q, got %+v", m.comments)
	}
	if m.comments[0].LineNumber != 3 || m.comments[0].Side != model.SideRight {
		t.Errorf("expected right side line 3, got %d %s", m.comments[0].LineNumber, m.comments[0].Side)
	}
	if m.lines[4].Comments != 1 {
		t.Errorf("expected badge on line 4, got %d", m.lines[4].Comments)
	}
	if len(m.Result().Comments) != 1 {
		t.Error("expected comment recorded in result")
	}

	m = press(m, "t")
	if !strings.Contains(m.View(), "ana") {
		t.Error("expected thread to show the author")
	}
}

func TestBlankCommentRejected(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "j", "c", "enter")
	if !m.commenting {
		t.Error("input should stay open after a rejected comment")
	}
	if !m.isError {
		t.Error("expected an error status")
	}

	m = press(m, "esc")
	if m.commenting {
		t.Error("expected esc to cancel")
	}
}

func TestCommentOnHunkHeader(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "c")
	if m.commenting {
		t.Error("hunk headers cannot be commented")
	}
}

func TestPresenceMsg(t *testing.T) {
	m := setupModel(t, testRanking)
	file := "main.go"

	newM, _ := m.Update(PresenceMsg{
		State: presence.StateJoined,
		Self:  "me",
		Roster: []model.PresenceRecord{
			{ConnectionID: "me", Username: "ana", CurrentFile: &file, Color: "#6366f1"},
			{ConnectionID: "b", Username: "bo", CurrentFile: &file, Color: "#ec4899"},
		},
	})
	m = newM.(Model)

	if len(m.viewers("main.go")) != 1 {
		t.Errorf("expected one other viewer, got %d", len(m.viewers("main.go")))
	}
	view := m.View()
	if !strings.Contains(view, "bo") {
		t.Error("expected viewer name in header")
	}
	if !strings.Contains(view, "2 online") {
		t.Error("expected online count in status bar")
	}
}

func TestRemoteComment(t *testing.T) {
	m := setupModel(t, testRanking)

	newM, _ := m.Update(RemoteCommentMsg{Comment: model.Comment{
		ID: "r1", PRID: prID, Filename: "main.go", LineNumber: 1,
		Side: model.SideRight, Author: "bo", Body: "nit",
	}})
	m = newM.(Model)

	if m.lines[1].Comments != 1 {
		t.Errorf("expected remote comment badge on line 1, got %d", m.lines[1].Comments)
	}
}

func TestScoringMsg(t *testing.T) {
	m := setupModel(t, nil)

	newM, _ := m.Update(ScoringMsg{Ranking: testRanking})
	m = newM.(Model)
	if m.ctrl.MLUnavailable() {
		t.Error("expected scoring to be applied")
	}
	if !strings.Contains(m.View(), "#1") {
		t.Error("expected rank badge in file list")
	}
}

func TestHelpToggle(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "?")
	if !m.showHelp {
		t.Error("expected help to be shown")
	}

	view := m.View()
	if !strings.Contains(view, "Keyboard Shortcuts") {
		t.Error("expected help view to contain shortcuts")
	}
}

func TestResultSummary(t *testing.T) {
	r := newResult()
	r.visit("a.go")
	r.visit("a.go")
	if got := r.Summary(3); got != "Reviewed 1 of 3 file(s), no comments added.\n" {
		t.Errorf("unexpected summary %q", got)
	}

	r.commented(model.Comment{Filename: "a.go", LineNumber: 4, Side: model.SideRight, Body: "fix"})
	if !strings.Contains(r.Summary(3), "a.go:4 (right) fix") {
		t.Errorf("expected comment line in %q", r.Summary(3))
	}
}

func kinds(m Model, col []int) []model.LineKind {
	out := make([]model.LineKind, len(col))
	for i, idx := range col {
		out[i] = m.lines[idx].Kind
	}
	return out
}

func TestSplitViewColumns(t *testing.T) {
	m := setupModel(t, testRanking)
	m = press(m, "v")

	left, right := m.splitColumns()
	wantLeft := []model.LineKind{model.LineHunkHeader, model.LineContext, model.LineContext, model.LineRemove, model.LineContext}
	wantRight := []model.LineKind{model.LineHunkHeader, model.LineContext, model.LineContext, model.LineAdd, model.LineAdd, model.LineContext}
	if !reflect.DeepEqual(kinds(m, left), wantLeft) {
		t.Errorf("left column: got %v, want %v", kinds(m, left), wantLeft)
	}
	if !reflect.DeepEqual(kinds(m, right), wantRight) {
		t.Errorf("right column: got %v, want %v", kinds(m, right), wantRight)
	}

	if n := strings.Count(m.View(), "@@ -1,4 +1,5 @@"); n != 2 {
		t.Errorf("expected hunk header in both columns, found %d", n)
	}
}

func TestResolveAndDeleteComment(t *testing.T) {
	m := setupModel(t, testRanking)

	m = press(m, "j", "j", "j", "j", "c", "o", "k", "enter", "t")
	if len(m.comments) != 1 {
		t.Fatalf("expected one comment, got %d", len(m.comments))
	}

	m = press(m, "r")
	if !m.comments[0].Resolved {
		t.Fatal("expected comment resolved")
	}
	if m.lines[4].Comments != 0 {
		t.Errorf("resolved comments should not count in the badge, got %d", m.lines[4].Comments)
	}

	m = press(m, "r")
	if m.isError || len(m.comments) != 1 || !m.comments[0].Resolved {
		t.Errorf("resolving again should be a no-op, status %q", m.status)
	}

	m = press(m, "x")
	if len(m.comments) != 0 {
		t.Fatalf("expected comment deleted, got %d", len(m.comments))
	}

	m = press(m, "x")
	if m.isError {
		t.Errorf("deleting again should not fail, status %q", m.status)
	}
}

func TestCannotResolveOthersComment(t *testing.T) {
	m := setupModel(t, testRanking)

	newM, _ := m.Update(RemoteCommentMsg{Comment: model.Comment{
		ID: "r1", PRID: prID, Filename: "main.go", LineNumber: 1,
		Side: model.SideRight, Author: "bo", Body: "nit",
	}})
	m = newM.(Model)

	m = press(m, "j", "t", "r")
	if !m.isError || !strings.Contains(m.status, "only the author") {
		t.Errorf("expected author error, got %q", m.status)
	}
	if m.comments[0].Resolved {
		t.Error("another reviewer's comment must stay unresolved")
	}
}
