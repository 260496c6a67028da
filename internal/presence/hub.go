package presence

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/revroom/internal/model"
)

// HubConfig tunes the server side. Zero values select the defaults.
type HubConfig struct {
	// SendBuffer is the number of frames queued per member before the
	// member is considered too slow and dropped.
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	maxFrameSize        = 64 * 1024
)

// Hub owns the rooms of one server. Rooms are created on first join and
// removed when their last member leaves.
type Hub struct {
	cfg HubConfig

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Hub{cfg: cfg, rooms: make(map[string]*Room)}
}

// Join adds a member to roomID. The member's queue receives the full
// roster first; every other member is told about the newcomer.
func (h *Hub) Join(roomID string, j Join) *Member {
	if j.JoinedAt == 0 {
		j.JoinedAt = h.cfg.Now().UnixMilli()
	}
	if j.Color == "" {
		j.Color = ColorFor(j.UserID)
	}
	for {
		h.mu.Lock()
		r, ok := h.rooms[roomID]
		if !ok {
			r = newRoom(roomID, h)
			h.rooms[roomID] = r
		}
		h.mu.Unlock()

		if m, ok := r.join(h.cfg.NewID(), j); ok {
			return m
		}
		// The room emptied and closed after we fetched it.
		h.mu.Lock()
		if h.rooms[roomID] == r {
			delete(h.rooms, roomID)
		}
		h.mu.Unlock()
	}
}

// Rooms reports the member count of every open room.
func (h *Hub) Rooms() map[string]int {
	h.mu.Lock()
	rooms := slices.Collect(maps.Values(h.rooms))
	h.mu.Unlock()

	out := make(map[string]int, len(rooms))
	for _, r := range rooms {
		if n := r.Len(); n > 0 {
			out[r.id] = n
		}
	}
	return out
}

// Room returns an open room by id.
func (h *Hub) Room(roomID string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	return r, ok
}

func (h *Hub) remove(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
		h.cfg.Logger.Debug("room closed", "room", r.id)
	}
}

// Room is the set of members reviewing one pull request.
type Room struct {
	id  string
	hub *Hub

	// mu orders roster changes and the frames they produce, so every
	// member observes updates in the order the room applied them.
	mu      sync.Mutex
	members map[string]*Member
	closed  bool
}

func newRoom(id string, hub *Hub) *Room {
	return &Room{id: id, hub: hub, members: make(map[string]*Member)}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Roster returns a copy of every member record.
func (r *Room) Roster() map[string]model.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

func (r *Room) rosterLocked() map[string]model.PresenceRecord {
	out := make(map[string]model.PresenceRecord, len(r.members))
	for id, m := range r.members {
		out[id] = m.record
	}
	return out
}

func (r *Room) join(id string, j Join) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}

	m := &Member{
		id:     id,
		room:   r,
		record: j.Record(id),
		out:    make(chan []byte, r.hub.cfg.SendBuffer),
	}
	r.members[id] = m

	r.enqueueLocked(m, PresenceState{ConnectionID: id, Presences: r.rosterLocked()})
	r.broadcastLocked(id, PresenceUpdate{ConnectionID: id, Patch: RecordPatch(m.record)})

	r.hub.cfg.Logger.Info("reviewer joined", "room", r.id, "connection", id, "user", j.Username, "members", len(r.members))
	return m, true
}

func (r *Room) update(m *Member, p Patch) {
	if p.Empty() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[m.id] != m {
		return
	}
	m.record = p.Apply(m.record)
	m.record.ConnectionID = m.id
	r.broadcastLocked(m.id, PresenceUpdate{ConnectionID: m.id, Patch: p})
}

func (r *Room) relay(m *Member, c model.Comment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[m.id] != m {
		return
	}
	r.broadcastLocked(m.id, CommentAdded{ConnectionID: m.id, Comment: c})
}

func (r *Room) leave(m *Member) {
	r.mu.Lock()
	if r.members[m.id] != m {
		r.mu.Unlock()
		return
	}
	delete(r.members, m.id)
	m.closeLocked()
	r.broadcastLocked(m.id, PresenceLeave{ConnectionID: m.id})
	empty := len(r.members) == 0
	if empty {
		r.closed = true
	}
	r.hub.cfg.Logger.Info("reviewer left", "room", r.id, "connection", m.id, "members", len(r.members))
	r.mu.Unlock()

	if empty {
		r.hub.remove(r)
	}
}

func (r *Room) broadcastLocked(from string, msg Message) {
	frame, err := Encode(msg)
	if err != nil {
		r.hub.cfg.Logger.Error("encoding frame", "type", msg.Type(), "error", err)
		return
	}
	for id, m := range r.members {
		if id != from {
			r.sendLocked(m, frame)
		}
	}
}

func (r *Room) enqueueLocked(m *Member, msg Message) {
	frame, err := Encode(msg)
	if err != nil {
		r.hub.cfg.Logger.Error("encoding frame", "type", msg.Type(), "error", err)
		return
	}
	r.sendLocked(m, frame)
}

// sendLocked queues a frame without blocking. A member whose queue is full
// has its queue closed; its connection then shuts down and leaves.
func (r *Room) sendLocked(m *Member, frame []byte) {
	if m.dead {
		return
	}
	select {
	case m.out <- frame:
	default:
		r.hub.cfg.Logger.Warn("dropping slow reviewer", "room", r.id, "connection", m.id)
		m.closeLocked()
	}
}

// Member is one joined connection.
type Member struct {
	id     string
	room   *Room
	record model.PresenceRecord

	out  chan []byte
	dead bool
}

func (m *Member) ID() string { return m.id }

// Outbound delivers encoded frames for this member. It is closed when the
// member leaves or falls too far behind.
func (m *Member) Outbound() <-chan []byte { return m.out }

// Update merges a patch into the member's record and relays it.
func (m *Member) Update(p Patch) { m.room.update(m, p) }

// Comment relays a comment to the other members.
func (m *Member) Comment(c model.Comment) { m.room.relay(m, c) }

// Leave removes the member. It is safe to call more than once.
func (m *Member) Leave() { m.room.leave(m) }

func (m *Member) closeLocked() {
	if !m.dead {
		m.dead = true
		close(m.out)
	}
}
