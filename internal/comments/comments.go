// Package comments implements line-scoped discussion threads for one
// pull request, persisted through a store.KV local to the reviewer.
//
// A Thread holds every comment for one (PR, file) pair in creation order.
// Each effective mutation writes the full list as JSON under
// "comments:<pr>:<file>" and then notifies subscribers synchronously, in
// mutation order. A snapshot older than one already delivered is skipped.
// Comments from other reviewers arrive through Merge; the store never
// fetches remote state itself.
package comments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/revroom/internal/model"
	"github.com/sprite-ai/revroom/internal/store"
)

// ValidationError reports a comment rejected before anything was stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid comment %s: %s", e.Field, e.Reason)
}

// Draft is the input for a new comment.
type Draft struct {
	Line         int
	Side         model.Side
	Body         string
	Author       string
	AuthorAvatar string
}

// Option configures a Thread.
type Option func(*options)

type options struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// WithClock overrides the time source for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDFunc overrides comment id generation.
func WithIDFunc(f func() string) Option {
	return func(o *options) { o.newID = f }
}

// WithLogger sets the logger used for recoverable load problems.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Key returns the persistence key for a (PR, file) pair.
func Key(prID, filename string) string {
	return "comments:" + prID + ":" + filename
}

// Thread is the comment list of one file in one pull request.
type Thread struct {
	kv       store.KV
	prID     string
	filename string
	opts     options

	mu       sync.Mutex
	comments []model.Comment
	version  uint64
	subs     map[int]func([]model.Comment)
	nextSub  int

	// notifyMu serializes delivery; delivered is the newest version
	// subscribers have seen.
	notifyMu  sync.Mutex
	delivered uint64
}

// Open loads the thread for prID/filename from kv. A stored value that
// cannot be decoded is logged and treated as an empty thread.
func Open(ctx context.Context, kv store.KV, prID, filename string, opts ...Option) (*Thread, error) {
	t := &Thread{
		kv:       kv,
		prID:     prID,
		filename: filename,
		opts:     buildOptions(opts),
		subs:     make(map[int]func([]model.Comment)),
	}

	raw, ok, err := kv.Get(ctx, Key(prID, filename))
	if err != nil {
		return nil, fmt.Errorf("loading comments: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &t.comments); err != nil {
			t.opts.logger.Warn("discarding unreadable comments", "pr", prID, "file", filename, "error", err)
			t.comments = nil
		}
	}
	return t, nil
}

// Filename returns the file this thread belongs to.
func (t *Thread) Filename() string { return t.filename }

// Add creates a right-side comment on line.
func (t *Thread) Add(ctx context.Context, line int, body, author string) (model.Comment, error) {
	return t.AddDraft(ctx, Draft{Line: line, Side: model.SideRight, Body: body, Author: author})
}

// AddDraft creates a comment from d. A body that is empty after trimming
// is rejected with a *ValidationError and nothing is stored.
func (t *Thread) AddDraft(ctx context.Context, d Draft) (model.Comment, error) {
	if strings.TrimSpace(d.Body) == "" {
		return model.Comment{}, &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	side := d.Side
	if side == "" {
		side = model.SideRight
	}

	now := t.opts.now().UTC()
	c := model.Comment{
		ID:           t.opts.newID(),
		PRID:         t.prID,
		Filename:     t.filename,
		LineNumber:   d.Line,
		Side:         side,
		Author:       d.Author,
		AuthorAvatar: d.AuthorAvatar,
		Body:         d.Body,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	t.mu.Lock()
	next := append(slices.Clone(t.comments), c)
	err := t.commitLocked(ctx, next)
	version := t.version
	t.mu.Unlock()
	if err != nil {
		return model.Comment{}, err
	}

	t.notify(next, version)
	return c, nil
}

// Resolve marks a comment resolved. Unknown or already-resolved ids are a
// no-op.
func (t *Thread) Resolve(ctx context.Context, id string) error {
	t.mu.Lock()
	i := t.indexLocked(id)
	if i < 0 || t.comments[i].Resolved {
		t.mu.Unlock()
		return nil
	}
	next := slices.Clone(t.comments)
	next[i].Resolved = true
	next[i].UpdatedAt = t.opts.now().UTC()
	err := t.commitLocked(ctx, next)
	version := t.version
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.notify(next, version)
	return nil
}

// Delete removes a comment. Unknown ids are a no-op.
func (t *Thread) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	i := t.indexLocked(id)
	if i < 0 {
		t.mu.Unlock()
		return nil
	}
	next := slices.Delete(slices.Clone(t.comments), i, i+1)
	err := t.commitLocked(ctx, next)
	version := t.version
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.notify(next, version)
	return nil
}

// Merge inserts a comment received from another reviewer. It reports
// false when the comment is already present or belongs elsewhere.
func (t *Thread) Merge(ctx context.Context, c model.Comment) (bool, error) {
	if c.Filename != t.filename || c.PRID != t.prID || strings.TrimSpace(c.Body) == "" {
		return false, nil
	}

	t.mu.Lock()
	if t.indexLocked(c.ID) >= 0 {
		t.mu.Unlock()
		return false, nil
	}
	// Keep creation order: insert after every comment not newer than c.
	pos := len(t.comments)
	for pos > 0 && t.comments[pos-1].CreatedAt.After(c.CreatedAt) {
		pos--
	}
	next := slices.Insert(slices.Clone(t.comments), pos, c)
	err := t.commitLocked(ctx, next)
	version := t.version
	t.mu.Unlock()
	if err != nil {
		return false, err
	}

	t.notify(next, version)
	return true, nil
}

// All returns every comment in creation order.
func (t *Thread) All() []model.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.comments)
}

// ForLine returns the comments on line in creation order.
func (t *Thread) ForLine(line int) []model.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.Comment
	for _, c := range t.comments {
		if c.LineNumber == line {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns the number of unresolved comments per line.
func (t *Thread) Counts() map[int]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[int]int)
	for _, c := range t.comments {
		if !c.Resolved {
			counts[c.LineNumber]++
		}
	}
	return counts
}

// Subscribe registers fn to receive the full list after every mutation.
// The returned func removes the subscription.
func (t *Thread) Subscribe(fn func([]model.Comment)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *Thread) commitLocked(ctx context.Context, next []model.Comment) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding comments: %w", err)
	}
	if err := t.kv.Put(ctx, Key(t.prID, t.filename), raw); err != nil {
		return fmt.Errorf("saving comments: %w", err)
	}
	t.comments = next
	t.version++
	return nil
}

func (t *Thread) indexLocked(id string) int {
	return slices.IndexFunc(t.comments, func(c model.Comment) bool { return c.ID == id })
}

// notify delivers snapshot unless a newer one was already delivered, so
// subscribers never see an older list after a newer one.
func (t *Thread) notify(snapshot []model.Comment, version uint64) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if version <= t.delivered {
		return
	}
	t.delivered = version

	t.mu.Lock()
	subs := make([]func([]model.Comment), 0, len(t.subs))
	for id := 0; id < t.nextSub; id++ {
		if fn, ok := t.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(slices.Clone(snapshot))
	}
}
