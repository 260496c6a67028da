package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sprite-ai/revroom/internal/model"
)

var (
	// ErrAnonymous is returned by Connect when no username is known.
	// Presence is disabled for anonymous viewers.
	ErrAnonymous = errors.New("presence requires a username")
	// ErrNotJoined is returned by sends made outside the Joined state.
	ErrNotJoined = errors.New("not joined to a room")
	// ErrAlreadyConnected is returned by Connect when a session is active.
	ErrAlreadyConnected = errors.New("presence client already connected")
	// ErrClosed is returned by WaitJoined when the channel closed first.
	ErrClosed = errors.New("presence channel closed")
)

// State is the client's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

// Identity describes the local reviewer.
type Identity struct {
	UserID    string
	Username  string
	AvatarURL string
	Color     string
}

// ClientConfig holds optional collaborators for a Client. Zero values
// select the defaults.
type ClientConfig struct {
	Dial   DialFunc
	Logger *slog.Logger
	Now    func() time.Time

	// OnChange is called after every state or roster change with a
	// snapshot of the roster. It runs on the receive goroutine.
	OnChange func(State, []model.PresenceRecord)
	// OnComment is called for comments relayed from other reviewers.
	OnComment func(CommentAdded)
}

// Client joins one room and mirrors its roster.
type Client struct {
	id  Identity
	cfg ClientConfig

	mu          sync.Mutex
	state       State
	roster      Roster
	ch          Channel
	joined      chan struct{}
	done        chan struct{}
	cancel      context.CancelFunc
	currentFile string
}

func NewClient(id Identity, cfg ClientConfig) *Client {
	if cfg.Dial == nil {
		cfg.Dial = DialWebSocket
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if id.Color == "" {
		id.Color = ColorFor(id.UserID)
	}
	return &Client{id: id, cfg: cfg}
}

// Connect dials url and sends the join frame. The client is Joined once
// the room answers with presence_state; see WaitJoined.
func (c *Client) Connect(ctx context.Context, url string) error {
	if c.id.Username == "" {
		return ErrAnonymous
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.joined = make(chan struct{})
	c.done = make(chan struct{})
	done := c.done
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel
	c.mu.Unlock()
	c.changed()

	fail := func(err error) error {
		c.mu.Lock()
		c.state = StateDisconnected
		c.cancel = nil
		close(done)
		c.mu.Unlock()
		c.changed()
		return err
	}

	ch, err := c.cfg.Dial(ctx, url)
	if err != nil {
		return fail(err)
	}

	frame, err := Encode(Join{
		UserID:    c.id.UserID,
		Username:  c.id.Username,
		AvatarURL: c.id.AvatarURL,
		Color:     c.id.Color,
		JoinedAt:  c.cfg.Now().UnixMilli(),
	})
	if err == nil {
		err = ch.Send(ctx, frame)
	}
	if err != nil {
		ch.Close()
		return fail(fmt.Errorf("sending join: %w", err))
	}

	c.mu.Lock()
	// Close cancels under the lock, so either it sees ch or we see the
	// cancellation here.
	if ctx.Err() != nil {
		c.mu.Unlock()
		ch.Close()
		return fail(fmt.Errorf("connect aborted: %w", ctx.Err()))
	}
	c.ch = ch
	c.cancel = nil
	c.mu.Unlock()

	go c.receive(ch, done)
	return nil
}

// WaitJoined blocks until the client is Joined, the channel closes or ctx
// is done.
func (c *Client) WaitJoined(ctx context.Context) error {
	c.mu.Lock()
	joined, done := c.joined, c.done
	c.mu.Unlock()
	if joined == nil {
		return ErrNotJoined
	}
	select {
	case <-joined:
		return nil
	case <-done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session, aborting a Connect that is still dialing. The
// client returns to Disconnected and its roster is cleared before Close
// returns. It must not be called from a ClientConfig callback.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ch, done := c.ch, c.done
	c.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}
	if done != nil {
		<-done
	}
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Self returns the connection id assigned by the room.
func (c *Client) Self() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Self()
}

// Roster returns every member of the room, including self.
func (c *Client) Roster() []model.PresenceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Snapshot()
}

// Viewing returns the other reviewers currently on filename.
func (c *Client) Viewing(filename string) []model.PresenceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Viewing(filename)
}

// SetCurrentFile announces the file the reviewer is looking at. An empty
// name means idle. The latest value is remembered and announced again
// right after joining.
func (c *Client) SetCurrentFile(name string) error {
	c.mu.Lock()
	c.currentFile = name
	c.mu.Unlock()
	return c.send(PresenceUpdate{Patch: FilePatch(name)})
}

// SendComment relays a locally created comment to the room.
func (c *Client) SendComment(cm model.Comment) error {
	return c.send(CommentAdded{Comment: cm})
}

func (c *Client) send(m Message) error {
	c.mu.Lock()
	ch, state := c.ch, c.state
	c.mu.Unlock()
	if state != StateJoined || ch == nil {
		return ErrNotJoined
	}
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ch.Send(ctx, frame)
}

func (c *Client) receive(ch Channel, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.roster.Reset()
		c.ch = nil
		close(done)
		c.mu.Unlock()
		ch.Close()
		c.changed()
	}()

	for {
		data, err := ch.Receive(context.Background())
		if err != nil {
			c.cfg.Logger.Debug("presence channel closed", "error", err)
			return
		}
		msg, err := Decode(data)
		if err != nil {
			c.cfg.Logger.Debug("ignoring presence frame", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg := msg.(type) {
	case PresenceState:
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.roster.Apply(msg)
		c.state = StateJoined
		close(c.joined)
		file := c.currentFile
		c.mu.Unlock()
		c.changed()
		if file != "" {
			if err := c.send(PresenceUpdate{Patch: FilePatch(file)}); err != nil {
				c.cfg.Logger.Debug("announcing current file", "error", err)
			}
		}

	case PresenceUpdate, PresenceLeave:
		c.mu.Lock()
		changed := c.state == StateJoined && c.roster.Apply(msg)
		c.mu.Unlock()
		if changed {
			c.changed()
		}

	case CommentAdded:
		c.mu.Lock()
		joined := c.state == StateJoined
		self := c.roster.Self()
		c.mu.Unlock()
		if joined && c.cfg.OnComment != nil && (msg.ConnectionID == "" || msg.ConnectionID != self) {
			c.cfg.OnComment(msg)
		}
	}
}

func (c *Client) changed() {
	if c.cfg.OnChange == nil {
		return
	}
	c.mu.Lock()
	state, roster := c.state, c.roster.Snapshot()
	c.mu.Unlock()
	c.cfg.OnChange(state, roster)
}
