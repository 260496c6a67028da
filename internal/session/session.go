// Package session holds the state of one reviewer's pass over a pull
// request: the file list and its ordering, the selected file, the view
// mode and the comment threads. Every change of selection is published
// so other reviewers see which file this one is on.
//
// A Controller is not safe for concurrent use; the TUI drives it from its
// update loop and marshals presence callbacks into that loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sprite-ai/revroom/internal/comments"
	"github.com/sprite-ai/revroom/internal/diff"
	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/rank"
)

// ErrNotAuthor is returned when resolving or deleting another
// reviewer's comment.
var ErrNotAuthor = errors.New("only the author can change a comment")

// Publisher receives the session's outbound presence events.
// *presence.Client satisfies it.
type Publisher interface {
	SetCurrentFile(name string) error
	SendComment(c model.Comment) error
}

// NopPublisher discards everything. Used when reviewing offline.
type NopPublisher struct{}

func (NopPublisher) SetCurrentFile(string) error      { return nil }
func (NopPublisher) SendComment(model.Comment) error { return nil }

// Config seeds a Controller.
type Config struct {
	Files      []model.FileEntry
	Ranking    *model.RankingResponse
	Clustering *model.ClusterResponse

	Comments     *comments.Book
	Publisher    Publisher
	Author       string
	AuthorAvatar string

	ReviewOrder bool
	ViewMode    model.ViewMode
	Logger      *slog.Logger
}

// Controller is the review session state machine.
type Controller struct {
	files      []model.FileEntry
	ranking    *model.RankingResponse
	clustering *model.ClusterResponse

	book   *comments.Book
	pub    Publisher
	author string
	avatar string
	log    *slog.Logger

	enriched    []model.EnrichedFile
	visible     []model.EnrichedFile
	selected    string
	viewMode    model.ViewMode
	reviewOrder bool
	cluster     *int

	parsed map[string][]model.PatchLine
}

// New builds a controller and selects the first visible file.
func New(cfg Config) *Controller {
	c := &Controller{
		files:       slices.Clone(cfg.Files),
		ranking:     cfg.Ranking,
		clustering:  cfg.Clustering,
		book:        cfg.Comments,
		pub:         cfg.Publisher,
		author:      cfg.Author,
		avatar:      cfg.AuthorAvatar,
		log:         cfg.Logger,
		viewMode:    cfg.ViewMode,
		reviewOrder: cfg.ReviewOrder,
		parsed:      make(map[string][]model.PatchLine),
	}
	if c.pub == nil {
		c.pub = NopPublisher{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.recompute()
	return c
}

// SetScoring replaces the ranking and clustering payloads, e.g. once the
// scoring service answers after the session started.
func (c *Controller) SetScoring(ranking *model.RankingResponse, clustering *model.ClusterResponse) {
	c.ranking = ranking
	c.clustering = clustering
	if c.cluster != nil && !c.hasCluster(*c.cluster) {
		c.cluster = nil
	}
	c.recompute()
}

// Files returns every enriched file in input order.
func (c *Controller) Files() []model.EnrichedFile { return slices.Clone(c.enriched) }

// Visible returns the files in display order with the cluster filter
// applied.
func (c *Controller) Visible() []model.EnrichedFile { return slices.Clone(c.visible) }

// Selected returns the selected file.
func (c *Controller) Selected() (model.EnrichedFile, bool) {
	i := c.SelectedIndex()
	if i < 0 {
		return model.EnrichedFile{}, false
	}
	return c.visible[i], true
}

// SelectedIndex returns the position of the selection in Visible, or -1.
func (c *Controller) SelectedIndex() int {
	return slices.IndexFunc(c.visible, func(f model.EnrichedFile) bool { return f.Filename == c.selected })
}

// Select moves the selection to a visible file by name.
func (c *Controller) Select(name string) bool {
	if !slices.ContainsFunc(c.visible, func(f model.EnrichedFile) bool { return f.Filename == name }) {
		return false
	}
	c.setSelected(name)
	return true
}

// SelectIndex moves the selection to the i-th visible file.
func (c *Controller) SelectIndex(i int) bool {
	if i < 0 || i >= len(c.visible) {
		return false
	}
	c.setSelected(c.visible[i].Filename)
	return true
}

// Next selects the following visible file, stopping at the last one.
func (c *Controller) Next() bool { return c.SelectIndex(c.SelectedIndex() + 1) }

// Prev selects the preceding visible file, stopping at the first one.
func (c *Controller) Prev() bool {
	i := c.SelectedIndex()
	if i <= 0 {
		return false
	}
	return c.SelectIndex(i - 1)
}

// JumpToRank selects the visible file ranked n.
func (c *Controller) JumpToRank(n int) bool {
	for _, f := range c.visible {
		if f.Ranking != nil && f.Ranking.Rank == n {
			c.setSelected(f.Filename)
			return true
		}
	}
	return false
}

func (c *Controller) ViewMode() model.ViewMode { return c.viewMode }

func (c *Controller) SetViewMode(m model.ViewMode) { c.viewMode = m }

func (c *Controller) ToggleViewMode() model.ViewMode {
	if c.viewMode == model.ViewUnified {
		c.viewMode = model.ViewSplit
	} else {
		c.viewMode = model.ViewUnified
	}
	return c.viewMode
}

// ReviewOrder reports whether files are sorted by rank.
func (c *Controller) ReviewOrder() bool { return c.reviewOrder }

func (c *Controller) SetReviewOrder(on bool) {
	c.reviewOrder = on
	c.recompute()
}

func (c *Controller) ToggleReviewOrder() bool {
	c.SetReviewOrder(!c.reviewOrder)
	return c.reviewOrder
}

// Clusters returns the cluster groups of the current scoring payload.
func (c *Controller) Clusters() []model.ClusterGroup {
	if c.clustering == nil {
		return nil
	}
	return slices.Clone(c.clustering.Groups)
}

// Cluster returns the active cluster filter.
func (c *Controller) Cluster() (int, bool) {
	if c.cluster == nil {
		return 0, false
	}
	return *c.cluster, true
}

// SelectCluster restricts the visible files to one cluster. Unknown ids
// are rejected.
func (c *Controller) SelectCluster(id int) bool {
	if !c.hasCluster(id) {
		return false
	}
	c.cluster = &id
	c.recompute()
	return true
}

// NextCluster cycles the filter through every cluster and back to none.
func (c *Controller) NextCluster() {
	groups := c.Clusters()
	if len(groups) == 0 {
		return
	}
	if c.cluster == nil {
		c.SelectCluster(groups[0].ClusterID)
		return
	}
	i := slices.IndexFunc(groups, func(g model.ClusterGroup) bool { return g.ClusterID == *c.cluster })
	if i < 0 || i+1 >= len(groups) {
		c.ClearCluster()
		return
	}
	c.SelectCluster(groups[i+1].ClusterID)
}

func (c *Controller) ClearCluster() {
	c.cluster = nil
	c.recompute()
}

// MLUnavailable reports whether no scoring data is present.
func (c *Controller) MLUnavailable() bool {
	return rank.MLUnavailable(c.ranking, c.clustering)
}

// ActiveLines returns the parsed patch of the selected file.
func (c *Controller) ActiveLines() []model.PatchLine {
	f, ok := c.Selected()
	if !ok {
		return nil
	}
	lines, ok := c.parsed[f.Filename]
	if !ok {
		lines = diff.Parse(f.Patch)
		c.parsed[f.Filename] = lines
	}
	return lines
}

// Unified returns the unified projection of the selected file.
func (c *Controller) Unified() []diff.UnifiedRow { return diff.Unified(c.ActiveLines()) }

// Split returns the split projection of the selected file.
func (c *Controller) Split() diff.SplitView { return diff.Split(c.ActiveLines()) }

// Thread returns the comment thread of a file.
func (c *Controller) Thread(ctx context.Context, filename string) (*comments.Thread, error) {
	if c.book == nil {
		return nil, fmt.Errorf("no comment store configured")
	}
	return c.book.Thread(ctx, filename)
}

// AddComment stores a comment on a new-side line of the selected file and
// relays it to the room.
func (c *Controller) AddComment(ctx context.Context, line int, body string) (model.Comment, error) {
	return c.addDraft(ctx, comments.Draft{Line: line, Side: model.SideRight, Body: body})
}

// CommentOnLine comments on the i-th line of ActiveLines, choosing the
// line number and side the patch line belongs to.
func (c *Controller) CommentOnLine(ctx context.Context, i int, body string) (model.Comment, error) {
	lines := c.ActiveLines()
	if i < 0 || i >= len(lines) {
		return model.Comment{}, &comments.ValidationError{Field: "line", Reason: "out of range"}
	}
	n, side, ok := diff.CommentLine(lines[i])
	if !ok {
		return model.Comment{}, &comments.ValidationError{Field: "line", Reason: "hunk headers cannot be commented"}
	}
	return c.addDraft(ctx, comments.Draft{Line: n, Side: side, Body: body})
}

func (c *Controller) addDraft(ctx context.Context, d comments.Draft) (model.Comment, error) {
	f, ok := c.Selected()
	if !ok {
		return model.Comment{}, &comments.ValidationError{Field: "filename", Reason: "no file selected"}
	}
	th, err := c.Thread(ctx, f.Filename)
	if err != nil {
		return model.Comment{}, err
	}
	d.Author = c.author
	d.AuthorAvatar = c.avatar
	cm, err := th.AddDraft(ctx, d)
	if err != nil {
		return model.Comment{}, err
	}
	if err := c.pub.SendComment(cm); err != nil {
		c.log.Debug("comment not relayed", "id", cm.ID, "error", err)
	}
	return cm, nil
}

// Author returns the name new comments are attributed to.
func (c *Controller) Author() string { return c.author }

// ResolveComment marks one of the reviewer's own comments in filename
// resolved. Unknown and already-resolved ids are a no-op.
func (c *Controller) ResolveComment(ctx context.Context, filename, id string) error {
	th, err := c.ownThread(ctx, filename, id)
	if err != nil || th == nil {
		return err
	}
	return th.Resolve(ctx, id)
}

// DeleteComment removes one of the reviewer's own comments in filename.
// Unknown ids are a no-op.
func (c *Controller) DeleteComment(ctx context.Context, filename, id string) error {
	th, err := c.ownThread(ctx, filename, id)
	if err != nil || th == nil {
		return err
	}
	return th.Delete(ctx, id)
}

// ownThread returns filename's thread when it holds id and the comment is
// the reviewer's own. A nil thread and error means id is unknown.
func (c *Controller) ownThread(ctx context.Context, filename, id string) (*comments.Thread, error) {
	th, err := c.Thread(ctx, filename)
	if err != nil {
		return nil, err
	}
	all := th.All()
	i := slices.IndexFunc(all, func(cm model.Comment) bool { return cm.ID == id })
	if i < 0 {
		return nil, nil
	}
	if all[i].Author != c.author {
		return nil, ErrNotAuthor
	}
	return th, nil
}

// ReceiveComment merges a comment relayed from another reviewer. It
// reports whether the comment was new.
func (c *Controller) ReceiveComment(ctx context.Context, cm model.Comment) (bool, error) {
	if c.book == nil || cm.PRID != c.book.PRID() {
		return false, nil
	}
	th, err := c.book.Thread(ctx, cm.Filename)
	if err != nil {
		return false, err
	}
	return th.Merge(ctx, cm)
}

func (c *Controller) hasCluster(id int) bool {
	return slices.ContainsFunc(c.Clusters(), func(g model.ClusterGroup) bool { return g.ClusterID == id })
}

func (c *Controller) recompute() {
	c.enriched = rank.Enrich(c.files, c.ranking, c.clustering)
	ordered := rank.FileOrder(c.enriched)
	if c.reviewOrder {
		ordered = rank.ReviewOrder(c.enriched)
	}
	c.visible = rank.FilterCluster(ordered, c.cluster)

	if c.SelectedIndex() >= 0 {
		return
	}
	next := ""
	if len(c.visible) > 0 {
		next = c.visible[0].Filename
	}
	c.setSelected(next)
}

func (c *Controller) setSelected(name string) {
	if name == c.selected {
		return
	}
	c.selected = name
	if err := c.pub.SetCurrentFile(name); err != nil {
		c.log.Debug("presence not updated", "file", name, "error", err)
	}
}
