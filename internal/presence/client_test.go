package presence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/revroom/internal/model"
)

// pipe is an in-memory Channel. The test plays the room on the far end.
type pipe struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	once       sync.Once
}

func newPipe() *pipe {
	return &pipe{
		toClient:   make(chan []byte, 16),
		fromClient: make(chan []byte, 16),
		closed:     make(chan struct{}),
	}
}

func (p *pipe) Send(ctx context.Context, data []byte) error {
	select {
	case p.fromClient <- data:
		return nil
	case <-p.closed:
		return errors.New("closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.toClient:
		return data, nil
	case <-p.closed:
		return nil, errors.New("closed")
	}
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipe) push(t *testing.T, m Message) {
	t.Helper()
	frame, err := Encode(m)
	require.NoError(t, err)
	p.toClient <- frame
}

func (p *pipe) sent(t *testing.T) Message {
	t.Helper()
	select {
	case frame := <-p.fromClient:
		msg, err := Decode(frame)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("client sent nothing")
		return nil
	}
}

func pipeClient(t *testing.T, cfg ClientConfig) (*Client, *pipe) {
	t.Helper()
	p := newPipe()
	cfg.Dial = func(context.Context, string) (Channel, error) { return p, nil }
	c := NewClient(Identity{UserID: "u1", Username: "ana"}, cfg)
	require.NoError(t, c.Connect(context.Background(), "ws://room"))
	t.Cleanup(func() { c.Close() })
	return c, p
}

func TestClient_AnonymousCannotConnect(t *testing.T) {
	c := NewClient(Identity{UserID: "u1"}, ClientConfig{})
	assert.ErrorIs(t, c.Connect(context.Background(), "ws://nowhere"), ErrAnonymous)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_DialFailureReturnsToDisconnected(t *testing.T) {
	c := NewClient(Identity{Username: "ana"}, ClientConfig{
		Dial: func(context.Context, string) (Channel, error) { return nil, errors.New("refused") },
	})
	require.Error(t, c.Connect(context.Background(), "ws://room"))
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.WaitJoined(context.Background()), ErrClosed)
}

func TestClient_JoinHandshake(t *testing.T) {
	var states []State
	var mu sync.Mutex
	c, p := pipeClient(t, ClientConfig{
		OnChange: func(s State, _ []model.PresenceRecord) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	join, ok := p.sent(t).(Join)
	require.True(t, ok)
	assert.Equal(t, "ana", join.Username)
	assert.Nil(t, join.CurrentFile)
	assert.Equal(t, ColorFor("u1"), join.Color)
	assert.Equal(t, StateConnecting, c.State())

	assert.ErrorIs(t, c.SetCurrentFile("early.go"), ErrNotJoined)

	// Frames before presence_state are ignored.
	p.push(t, PresenceUpdate{ConnectionID: "other", Patch: FilePatch("x.go")})
	p.toClient <- []byte("garbage")
	p.toClient <- []byte(`{"type":"cursor_move"}`)
	p.push(t, PresenceState{ConnectionID: "me", Presences: map[string]model.PresenceRecord{
		"me": {Username: "ana"},
	}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitJoined(ctx))
	assert.Equal(t, StateJoined, c.State())
	assert.Equal(t, "me", c.Self())
	assert.Len(t, c.Roster(), 1)

	// The file chosen before joining is announced once joined.
	upd := p.sent(t).(PresenceUpdate)
	assert.Equal(t, "early.go", upd.Patch.Apply(model.PresenceRecord{}).File())

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.Roster())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateJoined, StateDisconnected}, states)
}

func TestClient_AppliesUpdatesAndLeaves(t *testing.T) {
	var comments []CommentAdded
	var mu sync.Mutex
	c, p := pipeClient(t, ClientConfig{
		OnComment: func(m CommentAdded) {
			mu.Lock()
			comments = append(comments, m)
			mu.Unlock()
		},
	})
	p.sent(t)
	p.push(t, PresenceState{ConnectionID: "me", Presences: map[string]model.PresenceRecord{"me": {}}})
	require.NoError(t, c.WaitJoined(context.Background()))

	p.push(t, PresenceUpdate{ConnectionID: "b", Patch: FilePatch("x.go")})
	p.push(t, CommentAdded{ConnectionID: "b", Comment: model.Comment{ID: "c1"}})
	p.push(t, CommentAdded{ConnectionID: "me", Comment: model.Comment{ID: "echo"}})

	require.Eventually(t, func() bool { return len(c.Viewing("x.go")) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(comments) == 1
	}, time.Second, 5*time.Millisecond)

	p.push(t, PresenceLeave{ConnectionID: "b"})
	require.Eventually(t, func() bool { return len(c.Roster()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SendComment(model.Comment{ID: "mine", Body: "hi"}))
	sent := p.sent(t).(CommentAdded)
	assert.Equal(t, "mine", sent.Comment.ID)
}

func TestClient_RemoteCloseDisconnects(t *testing.T) {
	c, p := pipeClient(t, ClientConfig{})
	p.sent(t)
	p.push(t, PresenceState{ConnectionID: "me"})
	require.NoError(t, c.WaitJoined(context.Background()))

	p.Close()
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.SetCurrentFile("a.go"), ErrNotJoined)
}

func roomServer(t *testing.T, hub *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClients_ShareFileSwitches(t *testing.T) {
	hub := testHub(HubConfig{})
	url := roomServer(t, hub) + "/pr-octo-widgets-7"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := NewClient(Identity{UserID: "u1", Username: "ana"}, ClientConfig{})
	b := NewClient(Identity{UserID: "u2", Username: "bo"}, ClientConfig{})
	require.NoError(t, a.Connect(ctx, url))
	require.NoError(t, a.WaitJoined(ctx))
	require.NoError(t, b.Connect(ctx, url))
	require.NoError(t, b.WaitJoined(ctx))

	require.Eventually(t, func() bool { return len(a.Roster()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, b.Roster(), 2)

	require.NoError(t, a.SetCurrentFile("src/auth.ts"))
	require.Eventually(t, func() bool {
		viewers := b.Viewing("src/auth.ts")
		return len(viewers) == 1 && viewers[0].Username == "ana"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return len(b.Roster()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Close())

	require.Eventually(t, func() bool { return len(hub.Rooms()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_IgnoresConnectionsThatNeverJoin(t *testing.T) {
	hub := testHub(HubConfig{})
	url := roomServer(t, hub) + "/pr-1"

	lurker, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, lurker.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence_update","currentFile":"a.go"}`)))
	require.NoError(t, lurker.WriteMessage(websocket.TextMessage, []byte(`{{{`)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a := NewClient(Identity{Username: "ana"}, ClientConfig{})
	require.NoError(t, a.Connect(ctx, url))
	require.NoError(t, a.WaitJoined(ctx))
	assert.Len(t, a.Roster(), 1, "the lurker is not a member")

	lurker.Close()
	require.NoError(t, a.Close())
}

func TestClient_CloseAbortsPendingConnect(t *testing.T) {
	stalledSend := &pipe{
		toClient:   make(chan []byte, 1),
		fromClient: make(chan []byte), // nobody reads, so the join send blocks
		closed:     make(chan struct{}),
	}

	tests := []struct {
		name string
		dial func(started chan struct{}) DialFunc
	}{
		{"while dialing", func(started chan struct{}) DialFunc {
			return func(ctx context.Context, url string) (Channel, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
		}},
		{"while sending join", func(started chan struct{}) DialFunc {
			return func(ctx context.Context, url string) (Channel, error) {
				close(started)
				return stalledSend, nil
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			c := NewClient(Identity{UserID: "u1", Username: "ana"}, ClientConfig{Dial: tt.dial(started)})

			errc := make(chan error, 1)
			go func() { errc <- c.Connect(context.Background(), "ws://room") }()
			<-started

			require.NoError(t, c.Close())
			select {
			case err := <-errc:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(2 * time.Second):
				t.Fatal("Connect did not return after Close")
			}
			assert.Equal(t, StateDisconnected, c.State())
			assert.ErrorIs(t, c.SetCurrentFile("a.go"), ErrNotJoined)
		})
	}
}
