// Package tui implements the Bubble Tea terminal user interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/revroom/internal/comments"
	"github.com/sprite-ai/revroom/internal/diff"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/presence"
	"github.com/sprite-ai/revroom/internal/session"
)

// PresenceMsg carries a roster snapshot from the presence client.
type PresenceMsg struct {
	State  presence.State
	Roster []model.PresenceRecord
	Self   string
}

// RemoteCommentMsg carries a comment relayed from another reviewer.
type RemoteCommentMsg struct {
	Comment model.Comment
}

// ScoringMsg delivers ranking and clustering that arrived after start.
type ScoringMsg struct {
	Ranking    *model.RankingResponse
	Clustering *model.ClusterResponse
}

// Model is the top-level Bubble Tea model for revroom.
type Model struct {
	ctx   context.Context
	ctrl  *session.Controller
	title string

	// UI state
	width  int
	height int

	// Diff viewport; scrollOffset is also the line cursor.
	scrollOffset int
	viewHeight   int

	// Rendered lines and comments for the selected file
	lines    []renderedLine
	comments []model.Comment

	// Presence
	presenceState presence.State
	roster        []model.PresenceRecord
	self          string

	// Comment input
	input       textinput.Model
	commenting  bool
	showThread  bool
	threadIndex int

	showHelp bool
	status   string
	isError  bool

	result *Result
}

// New creates a new TUI model over a review session. title is shown in
// the file list header, typically the PR id.
func New(ctx context.Context, ctrl *session.Controller, title string) Model {
	ti := textinput.New()
	ti.Placeholder = "Leave a comment"
	ti.CharLimit = 2000

	m := Model{
		ctx:    ctx,
		ctrl:   ctrl,
		title:  title,
		input:  ti,
		result: newResult(),
	}
	m.updateLines()
	return m
}

// Result returns what happened during the session.
func (m Model) Result() *Result { return m.result }

func (m *Model) updateLines() {
	f, ok := m.ctrl.Selected()
	if !ok {
		m.lines = nil
		m.comments = nil
		return
	}
	m.result.visit(f.Filename)

	m.comments = nil
	if th, err := m.ctrl.Thread(m.ctx, f.Filename); err == nil {
		m.comments = th.All()
	}
	m.lines = renderPatch(f.Filename, m.ctrl.Unified(), m.comments)
	if m.scrollOffset >= len(m.lines) {
		m.scrollOffset = max(len(m.lines)-1, 0)
	}
}

// selectionChanged resets the viewport after the controller moved the
// selection.
func (m *Model) selectionChanged(before string) {
	if f, ok := m.ctrl.Selected(); !ok || f.Filename != before {
		m.scrollOffset = 0
		m.threadIndex = 0
	}
	m.updateLines()
}

func (m Model) selectedName() string {
	f, _ := m.ctrl.Selected()
	return f.Filename
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewHeight = m.height - 4 // status bar + borders
		m.input.Width = max(m.width-20, 10)
		return m, nil

	case PresenceMsg:
		m.presenceState = msg.State
		m.roster = msg.Roster
		m.self = msg.Self
		return m, nil

	case RemoteCommentMsg:
		added, err := m.ctrl.ReceiveComment(m.ctx, msg.Comment)
		if err != nil {
			m.setError(err)
		} else if added && msg.Comment.Filename == m.selectedName() {
			m.updateLines()
		}
		return m, nil

	case ScoringMsg:
		before := m.selectedName()
		m.ctrl.SetScoring(msg.Ranking, msg.Clustering)
		m.selectionChanged(before)
		return m, nil

	case tea.KeyMsg:
		if m.commenting {
			return m.updateComment(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateComment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.commenting = false
		m.input.Blur()
		m.input.Reset()
		return m, nil

	case key.Matches(msg, keys.Submit):
		c, err := m.ctrl.CommentOnLine(m.ctx, m.scrollOffset, m.input.Value())
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.result.commented(c)
		m.commenting = false
		m.input.Blur()
		m.input.Reset()
		m.status = fmt.Sprintf("Comment added on line %d", c.LineNumber)
		m.isError = false
		m.updateLines()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	before := m.selectedName()
	m.status = ""

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Down):
		if m.scrollOffset < len(m.lines)-1 {
			m.scrollOffset++
			m.threadIndex = 0
		}

	case key.Matches(msg, keys.Up):
		if m.scrollOffset > 0 {
			m.scrollOffset--
			m.threadIndex = 0
		}

	case key.Matches(msg, keys.NextFile):
		if m.ctrl.Next() {
			m.selectionChanged(before)
		}

	case key.Matches(msg, keys.PrevFile):
		if m.ctrl.Prev() {
			m.selectionChanged(before)
		}

	case key.Matches(msg, keys.Rank):
		n := int(msg.Runes[0] - '0')
		if m.ctrl.JumpToRank(n) {
			m.selectionChanged(before)
		} else {
			m.status = fmt.Sprintf("No file ranked #%d", n)
		}

	case key.Matches(msg, keys.NextHunk):
		m.jumpToNextHunk()

	case key.Matches(msg, keys.PrevHunk):
		m.jumpToPrevHunk()

	case key.Matches(msg, keys.Toggle):
		m.ctrl.ToggleViewMode()

	case key.Matches(msg, keys.Order):
		if m.ctrl.MLUnavailable() {
			m.status = "Ranking unavailable"
			break
		}
		m.ctrl.ToggleReviewOrder()
		m.selectionChanged(before)

	case key.Matches(msg, keys.Cluster):
		if len(m.ctrl.Clusters()) == 0 {
			m.status = "No clusters"
			break
		}
		m.ctrl.NextCluster()
		m.selectionChanged(before)

	case key.Matches(msg, keys.ClearCluster):
		m.ctrl.ClearCluster()
		m.selectionChanged(before)

	case key.Matches(msg, keys.Comment):
		if len(m.lines) == 0 {
			break
		}
		if _, _, ok := diff.CommentLine(m.lines[m.scrollOffset].PatchLine); !ok {
			m.status = "Move to a code line to comment"
			break
		}
		m.commenting = true
		return m, m.input.Focus()

	case key.Matches(msg, keys.Thread):
		m.showThread = !m.showThread

	case key.Matches(msg, keys.NextComment):
		if n := len(m.cursorComments()); n > 0 {
			m.threadIndex = (m.threadIndex + 1) % n
		}
		m.showThread = true

	case key.Matches(msg, keys.Resolve):
		m.changeComment(false)

	case key.Matches(msg, keys.Delete):
		m.changeComment(true)

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}

	return m, nil
}

func (m *Model) setError(err error) {
	var verr *comments.ValidationError
	if errors.As(err, &verr) {
		m.status = "Comment not saved: " + verr.Reason
	} else {
		m.status = "Error: " + err.Error()
	}
	m.isError = true
}

// cursorComments returns the comments on the cursor line in creation
// order.
func (m Model) cursorComments() []model.Comment {
	if len(m.lines) == 0 {
		return nil
	}
	n, side, ok := diff.CommentLine(m.lines[m.scrollOffset].PatchLine)
	if !ok {
		return nil
	}
	var out []model.Comment
	for _, c := range m.comments {
		if c.LineNumber == n && c.Side == side {
			out = append(out, c)
		}
	}
	return out
}

// selectedComment is the comment highlighted in the thread pane.
func (m Model) selectedComment() (model.Comment, bool) {
	cs := m.cursorComments()
	if len(cs) == 0 {
		return model.Comment{}, false
	}
	return cs[min(m.threadIndex, len(cs)-1)], true
}

// changeComment resolves or deletes the selected comment in the open
// thread pane.
func (m *Model) changeComment(remove bool) {
	c, ok := m.selectedComment()
	if !m.showThread || !ok {
		m.status = "Open a thread with t to pick a comment"
		return
	}

	var err error
	if remove {
		err = m.ctrl.DeleteComment(m.ctx, c.Filename, c.ID)
	} else {
		err = m.ctrl.ResolveComment(m.ctx, c.Filename, c.ID)
	}
	if err != nil {
		m.setError(err)
		return
	}

	m.isError = false
	if remove {
		m.status = "Comment deleted"
	} else {
		m.status = "Comment resolved"
	}
	m.updateLines()
	if n := len(m.cursorComments()); m.threadIndex >= n {
		m.threadIndex = max(n-1, 0)
	}
}

func (m *Model) jumpToNextHunk() {
	for _, i := range diff.HunkStarts(m.patchLines()) {
		if i > m.scrollOffset {
			m.scrollOffset = i
			m.threadIndex = 0
			return
		}
	}
}

func (m *Model) jumpToPrevHunk() {
	starts := diff.HunkStarts(m.patchLines())
	for j := len(starts) - 1; j >= 0; j-- {
		if starts[j] < m.scrollOffset {
			m.scrollOffset = starts[j]
			m.threadIndex = 0
			return
		}
	}
}

func (m Model) patchLines() []model.PatchLine {
	out := make([]model.PatchLine, len(m.lines))
	for i, rl := range m.lines {
		out[i] = rl.PatchLine
	}
	return out
}

// viewers returns the other reviewers currently on filename.
func (m Model) viewers(filename string) []model.PresenceRecord {
	var out []model.PresenceRecord
	for _, r := range m.roster {
		if r.ConnectionID != m.self && r.File() == filename {
			out = append(out, r)
		}
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	// Layout: file list on left, diff on right
	fileListWidth := m.fileListWidth()
	diffWidth := m.width - fileListWidth - 1 // -1 for gap

	bottom := m.renderStatusBar()
	if m.commenting {
		bottom = m.renderCommentInput() + "\n" + bottom
	}
	mainHeight := m.height - lipgloss.Height(bottom)

	fileList := m.renderFileList(fileListWidth, mainHeight)
	diffView := m.renderDiffView(diffWidth, mainHeight)

	main := lipgloss.JoinHorizontal(lipgloss.Top, fileList, " ", diffView)
	return lipgloss.JoinVertical(lipgloss.Left, main, bottom)
}

func (m Model) fileListWidth() int {
	// Calculate based on longest filename, capped
	maxLen := 20
	for _, f := range m.ctrl.Visible() {
		if len(f.Filename) > maxLen {
			maxLen = len(f.Filename)
		}
	}
	w := maxLen + 16 // padding + rank badge + stats
	if w > m.width/3 {
		w = m.width / 3
	}
	if w < 24 {
		w = 24
	}
	return w
}

func (m Model) renderFileList(width, height int) string {
	var b strings.Builder
	inner := width - 4

	if m.title != "" {
		b.WriteString(fileHeaderStyle.Render(truncate(m.title, inner)))
		b.WriteByte('\n')
	}
	if m.ctrl.MLUnavailable() {
		b.WriteString(bannerStyle.Render(truncate("ML ranking unavailable", inner)))
		b.WriteByte('\n')
	}
	if id, ok := m.ctrl.Cluster(); ok {
		b.WriteString(clusterLabelStyle.Render(truncate("cluster: "+m.clusterLabel(id), inner)))
		b.WriteByte('\n')
	}

	files := m.ctrl.Visible()
	selected := m.ctrl.SelectedIndex()
	for i, f := range files {
		rankCol := "   "
		if f.Ranking != nil {
			rankCol = tierStyle(f.Ranking.FinalScore).Render(fmt.Sprintf("#%-2d", f.Ranking.Rank))
		}

		var dots string
		for _, v := range m.viewers(f.Filename) {
			dots += presenceDot(v.Color)
		}

		stats := fmt.Sprintf("+%d -%d", f.Additions, f.Deletions)
		maxName := inner - 4 - len(stats) - 1 - lipgloss.Width(dots)
		name := f.Filename
		if maxName > 0 && len(name) > maxName {
			name = "…" + name[len(name)-maxName+1:]
		}
		line := fmt.Sprintf("%-*s %s", max(maxName, 0), name, stats)

		style := fileItemStyle
		if i == selected {
			style = fileItemSelectedStyle
		}
		b.WriteString(rankCol + " " + style.Render(line) + dots)
		if f.Cluster != nil && m.width >= 100 {
			b.WriteString("\n    " + clusterLabelStyle.Render(truncate(f.Cluster.Label, inner-4)))
		}
		if i < len(files)-1 {
			b.WriteByte('\n')
		}
	}

	innerHeight := height - 2 // borders
	return fileListStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) clusterLabel(id int) string {
	for _, g := range m.ctrl.Clusters() {
		if g.ClusterID == id {
			return g.Label
		}
	}
	return fmt.Sprintf("#%d", id)
}

func (m Model) renderDiffView(width, height int) string {
	innerWidth := width - 4 // borders + padding
	innerHeight := height - 2

	f, ok := m.ctrl.Selected()
	if !ok {
		return diffViewStyle.Width(width).Height(innerHeight).Render("No changes")
	}

	var b strings.Builder
	header := fileHeaderStyle.Render(f.Filename) + helpBarStyle.Render("  "+diff.Language(f.Filename))
	for _, v := range m.viewers(f.Filename) {
		header += "  " + presenceDot(v.Color) + " " + v.Username
	}
	b.WriteString(header)
	b.WriteByte('\n')

	used := 1
	if f.Ranking != nil && f.Ranking.Explanation != "" {
		b.WriteString(explanationStyle.Render(truncate(f.Ranking.Explanation, innerWidth)))
		b.WriteByte('\n')
		used += 2
	}

	thread := ""
	if m.showThread {
		thread = m.renderThread(innerWidth)
	}

	visibleLines := innerHeight - used - lipgloss.Height(thread)
	if visibleLines < 1 {
		visibleLines = 1
	}

	if len(m.lines) == 0 {
		b.WriteString(helpBarStyle.Render("No diff available for this file."))
	} else if m.ctrl.ViewMode() == model.ViewSplit {
		m.renderSplitDiff(&b, innerWidth, visibleLines)
	} else {
		m.renderUnifiedDiff(&b, innerWidth, visibleLines)
	}
	if thread != "" {
		b.WriteByte('\n')
		b.WriteString(thread)
	}

	return diffViewStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) cursorMark(i int) string {
	if i == m.scrollOffset {
		return cursorStyle.Render("▸")
	}
	return " "
}

func (m Model) renderUnifiedDiff(b *strings.Builder, width, visibleLines int) {
	end := min(m.scrollOffset+visibleLines, len(m.lines))
	for i := m.scrollOffset; i < end; i++ {
		b.WriteString(m.cursorMark(i))
		b.WriteString(styleLine(m.lines[i], width-1))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
}

func (m Model) renderSplitDiff(b *strings.Builder, width, visibleLines int) {
	halfWidth := (width - 3) / 2 // separator
	left, right := m.splitColumns()

	// Both columns scroll together; keep the cursor row on screen in the
	// column that holds it.
	lpos, inLeft := slices.BinarySearch(left, m.scrollOffset)
	rpos, _ := slices.BinarySearch(right, m.scrollOffset)
	start := min(lpos, rpos)
	cursorRow := rpos
	if inLeft {
		cursorRow = lpos
	}
	if cursorRow-start >= visibleLines {
		start = cursorRow - visibleLines + 1
	}

	end := min(start+visibleLines, max(len(left), len(right)))
	pad := lipgloss.NewStyle().Width(halfWidth).MaxWidth(halfWidth)
	for row := start; row < end; row++ {
		b.WriteString(pad.Render(m.splitCell(left, row, halfWidth, model.SideLeft)))
		b.WriteString(" │ ")
		b.WriteString(m.splitCell(right, row, halfWidth, model.SideRight))
		if row < end-1 {
			b.WriteByte('\n')
		}
	}
}

// splitColumns lays the split projection out as two independent columns
// of indexes into m.lines: the pre-image on the left and the post-image on
// the right. Each column is an ordered subsequence of m.lines.
func (m Model) splitColumns() (left, right []int) {
	sv := m.ctrl.Split()
	li, ri := 0, 0
	for i, rl := range m.lines {
		if li < len(sv.Left) && sv.Left[li] == rl.PatchLine {
			left = append(left, i)
			li++
		}
		if ri < len(sv.Right) && sv.Right[ri] == rl.PatchLine {
			right = append(right, i)
			ri++
		}
	}
	return left, right
}

func (m Model) splitCell(col []int, row, width int, side model.Side) string {
	if row >= len(col) {
		return ""
	}
	i := col[row]
	return m.cursorMark(i) + styleSplitCell(m.lines[i], width-1, side)
}

// renderThread lists the comments on the cursor line.
func (m Model) renderThread(width int) string {
	if len(m.lines) == 0 {
		return ""
	}
	n, side, ok := diff.CommentLine(m.lines[m.scrollOffset].PatchLine)
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString(helpBarStyle.Render(strings.Repeat("─", max(width, 0))))
	found := false
	selected, _ := m.selectedComment()
	for _, c := range m.comments {
		if c.LineNumber != n || c.Side != side {
			continue
		}
		found = true
		mark := "  "
		if c.ID == selected.ID {
			mark = cursorStyle.Render("▸") + " "
		}
		author := c.Author
		if author == "" {
			author = "anonymous"
		}
		body := truncate(strings.ReplaceAll(c.Body, "\n", " "), width-len(author)-4)
		if c.Resolved {
			body = threadResolvedStyle.Render(body + " (resolved)")
		}
		b.WriteString("\n" + mark + threadAuthorStyle.Render(author) + ": " + body)
	}
	if !found {
		b.WriteString("\n" + helpBarStyle.Render(fmt.Sprintf("No comments on line %d", n)))
	}
	return b.String()
}

func (m Model) renderCommentInput() string {
	f, _ := m.ctrl.Selected()
	label := fmt.Sprintf(" %s:%d ", f.Filename, m.lines[m.scrollOffset].NewLineNumber)
	if m.lines[m.scrollOffset].Kind == model.LineRemove {
		label = fmt.Sprintf(" %s:%d (old) ", f.Filename, m.lines[m.scrollOffset].OldLineNumber)
	}
	return helpKeyStyle.Render(label) + m.input.View()
}

func (m Model) renderStatusBar() string {
	files := m.ctrl.Visible()

	left := fmt.Sprintf(" File %d/%d", m.ctrl.SelectedIndex()+1, len(files))
	if len(m.lines) > 0 {
		left += fmt.Sprintf("  Line %d/%d", m.scrollOffset+1, len(m.lines))
	}
	if m.status != "" {
		if m.isError {
			left += "  " + statusErrorStyle.Render(m.status)
		} else {
			left += "  " + m.status
		}
	}

	order := "original order"
	if m.ctrl.ReviewOrder() {
		order = "review order"
	}

	online := "offline"
	if m.presenceState == presence.StateJoined {
		online = fmt.Sprintf("%d online", len(m.roster))
	} else if m.presenceState == presence.StateConnecting {
		online = "connecting"
	}

	right := fmt.Sprintf("%s  %s  %s  ? help ", online, m.ctrl.ViewMode(), order)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(fileHeaderStyle.Render("revroom: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, kb := range []key.Binding{
		keys.Up, keys.Down, keys.NextFile, keys.PrevFile, keys.NextHunk, keys.PrevHunk,
		keys.Rank, keys.Order, keys.Cluster, keys.ClearCluster, keys.Toggle,
		keys.Comment, keys.Thread, keys.NextComment, keys.Resolve, keys.Delete,
		keys.Help, keys.Quit,
	} {
		h := kb.Help()
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(h.Key),
			h.Desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

// Run starts the TUI application. attach, when non-nil, is called with
// the program before it runs so background sources can Send messages.
func Run(m Model, attach func(*tea.Program)) (*Result, error) {
	p := tea.NewProgram(m, tea.WithAltScreen())
	if attach != nil {
		attach(p)
	}
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Result(), nil
}
