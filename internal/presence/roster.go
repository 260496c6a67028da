package presence

import (
	"cmp"
	"hash/fnv"
	"maps"
	"slices"

	"github.com/sprite-ai/revroom/internal/model"
)

// Palette is the set of colors assigned to reviewers.
var Palette = []string{
	"#6366f1",
	"#8b5cf6",
	"#ec4899",
	"#14b8a6",
	"#f59e0b",
	"#3b82f6",
	"#10b981",
	"#f97316",
}

// ColorFor picks a stable palette color for a user.
func ColorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// Roster is the client-side view of a room, keyed by connection id.
// It is not safe for concurrent use.
type Roster struct {
	self    string
	entries map[string]model.PresenceRecord
}

// Apply folds one inbound message into the roster and reports whether
// the roster changed.
func (r *Roster) Apply(m Message) bool {
	switch m := m.(type) {
	case PresenceState:
		r.self = m.ConnectionID
		r.entries = make(map[string]model.PresenceRecord, len(m.Presences))
		for id, rec := range m.Presences {
			rec.ConnectionID = id
			r.entries[id] = rec
		}
		return true
	case PresenceUpdate:
		if m.ConnectionID == "" {
			return false
		}
		if r.entries == nil {
			r.entries = make(map[string]model.PresenceRecord)
		}
		rec := m.Patch.Apply(r.entries[m.ConnectionID])
		rec.ConnectionID = m.ConnectionID
		r.entries[m.ConnectionID] = rec
		return true
	case PresenceLeave:
		if _, ok := r.entries[m.ConnectionID]; !ok {
			return false
		}
		delete(r.entries, m.ConnectionID)
		return true
	}
	return false
}

// Self returns the local connection id, or "" before presence_state.
func (r *Roster) Self() string { return r.self }

// Get returns the record for a connection id.
func (r *Roster) Get(id string) (model.PresenceRecord, bool) {
	rec, ok := r.entries[id]
	return rec, ok
}

func (r *Roster) Len() int { return len(r.entries) }

// Snapshot returns all records ordered by join time, then connection id.
func (r *Roster) Snapshot() []model.PresenceRecord {
	out := slices.Collect(maps.Values(r.entries))
	slices.SortFunc(out, func(a, b model.PresenceRecord) int {
		return cmp.Or(cmp.Compare(a.JoinedAt, b.JoinedAt), cmp.Compare(a.ConnectionID, b.ConnectionID))
	})
	return out
}

// Viewing returns the reviewers other than self whose current file is
// filename.
func (r *Roster) Viewing(filename string) []model.PresenceRecord {
	var out []model.PresenceRecord
	for _, rec := range r.Snapshot() {
		if rec.ConnectionID != r.self && rec.File() == filename && filename != "" {
			out = append(out, rec)
		}
	}
	return out
}

// Reset empties the roster.
func (r *Roster) Reset() {
	r.self = ""
	r.entries = nil
}
