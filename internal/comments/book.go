package comments

import (
	"context"
	"sync"

	"github.com/sprite-ai/revroom/internal/store"
)

// Book lazily opens and caches the threads of one pull request.
type Book struct {
	kv   store.KV
	prID string
	opts []Option

	mu      sync.Mutex
	threads map[string]*Thread
}

func NewBook(kv store.KV, prID string, opts ...Option) *Book {
	return &Book{
		kv:      kv,
		prID:    prID,
		opts:    opts,
		threads: make(map[string]*Thread),
	}
}

// PRID returns the pull request the book belongs to.
func (b *Book) PRID() string { return b.prID }

// Thread returns the thread for filename, loading it on first use.
func (b *Book) Thread(ctx context.Context, filename string) (*Thread, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.threads[filename]; ok {
		return t, nil
	}
	t, err := Open(ctx, b.kv, b.prID, filename, b.opts...)
	if err != nil {
		return nil, err
	}
	b.threads[filename] = t
	return t, nil
}
