// Package presence synchronizes reviewer presence for a pull request
// room over a persistent duplex channel.
//
// Frames are single JSON objects discriminated by "type". Clients send
// join, presence_update and comment_added; the room answers a join with
// presence_state and fans out presence_update, presence_leave and
// comment_added to the other members.
package presence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sprite-ai/revroom/internal/model"
)

// Type is the frame discriminator.
type Type string

const (
	TypeJoin           Type = "join"
	TypePresenceState  Type = "presence_state"
	TypePresenceUpdate Type = "presence_update"
	TypePresenceLeave  Type = "presence_leave"
	TypeCommentAdded   Type = "comment_added"
)

// ErrUnknownType is returned by Decode for a well-formed frame whose type
// is not part of the protocol. Receivers ignore such frames.
var ErrUnknownType = errors.New("unknown message type")

// ProtocolError wraps a frame that could not be decoded.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return "malformed frame: " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// Message is one protocol frame. The set of variants is closed.
type Message interface {
	Type() Type
	isMessage()
}

// Join announces a reviewer entering the room.
type Join struct {
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	AvatarURL   string  `json:"avatarUrl"`
	Color       string  `json:"color"`
	CurrentFile *string `json:"currentFile"`
	JoinedAt    int64   `json:"joinedAt"`
}

// PresenceState is the full roster, sent once to a newly joined member.
// ConnectionID tells the receiver which entry is its own.
type PresenceState struct {
	ConnectionID string                          `json:"connectionId,omitempty"`
	Presences    map[string]model.PresenceRecord `json:"presences"`
}

// PresenceUpdate carries changed fields of one member's record.
type PresenceUpdate struct {
	ConnectionID string
	Patch        Patch
}

// PresenceLeave announces a member whose channel closed.
type PresenceLeave struct {
	ConnectionID string `json:"connectionId"`
}

// CommentAdded relays a newly created comment. ConnectionID is the
// sender, filled in by the room.
type CommentAdded struct {
	ConnectionID string        `json:"connectionId,omitempty"`
	Comment      model.Comment `json:"comment"`
}

func (Join) Type() Type           { return TypeJoin }
func (PresenceState) Type() Type  { return TypePresenceState }
func (PresenceUpdate) Type() Type { return TypePresenceUpdate }
func (PresenceLeave) Type() Type  { return TypePresenceLeave }
func (CommentAdded) Type() Type   { return TypeCommentAdded }

func (Join) isMessage()           {}
func (PresenceState) isMessage()  {}
func (PresenceUpdate) isMessage() {}
func (PresenceLeave) isMessage()  {}
func (CommentAdded) isMessage()   {}

// Record builds the presence record a join describes.
func (j Join) Record(connectionID string) model.PresenceRecord {
	return model.PresenceRecord{
		ConnectionID: connectionID,
		UserID:       j.UserID,
		Username:     j.Username,
		AvatarURL:    j.AvatarURL,
		CurrentFile:  j.CurrentFile,
		Color:        j.Color,
		JoinedAt:     j.JoinedAt,
	}
}

// Encode serializes m as a single-line JSON frame.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case Join:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Join
		}{TypeJoin, m})
	case PresenceState:
		if m.Presences == nil {
			m.Presences = map[string]model.PresenceRecord{}
		}
		return json.Marshal(struct {
			Type Type `json:"type"`
			PresenceState
		}{TypePresenceState, m})
	case PresenceUpdate:
		fields := m.Patch.fields()
		fields["type"] = TypePresenceUpdate
		if m.ConnectionID != "" {
			fields["connectionId"] = m.ConnectionID
		}
		return json.Marshal(fields)
	case PresenceLeave:
		return json.Marshal(struct {
			Type Type `json:"type"`
			PresenceLeave
		}{TypePresenceLeave, m})
	case CommentAdded:
		return json.Marshal(struct {
			Type Type `json:"type"`
			CommentAdded
		}{TypeCommentAdded, m})
	}
	return nil, fmt.Errorf("cannot encode %T", m)
}

// Decode parses one frame. Malformed JSON yields a *ProtocolError and an
// unrecognized type yields ErrUnknownType.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &ProtocolError{Err: err}
	}

	var typ Type
	raw, ok := fields["type"]
	if !ok {
		return nil, &ProtocolError{Err: errors.New("missing type")}
	}
	if err := json.Unmarshal(raw, &typ); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("type: %w", err)}
	}

	var (
		msg Message
		err error
	)
	switch typ {
	case TypeJoin:
		var m Join
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePresenceState:
		var m PresenceState
		err = json.Unmarshal(data, &m)
		if m.Presences == nil {
			m.Presences = map[string]model.PresenceRecord{}
		}
		msg = m
	case TypePresenceUpdate:
		var m PresenceUpdate
		if rawID, ok := fields["connectionId"]; ok {
			err = json.Unmarshal(rawID, &m.ConnectionID)
		}
		if err == nil {
			m.Patch, err = parsePatch(fields)
		}
		msg = m
	case TypePresenceLeave:
		var m PresenceLeave
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCommentAdded:
		var m CommentAdded
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%s: %w", typ, err)}
	}
	return msg, nil
}
