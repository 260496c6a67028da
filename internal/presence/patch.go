package presence

import (
	"encoding/json"
	"fmt"

	"github.com/sprite-ai/revroom/internal/model"
)

// Patch is a partial presence record. Nil fields are absent from the
// frame. FileSet distinguishes an absent currentFile from an explicit
// null (the reviewer went idle).
type Patch struct {
	UserID    *string
	Username  *string
	AvatarURL *string
	Color     *string
	JoinedAt  *int64

	FileSet     bool
	CurrentFile *string
}

// FilePatch returns a patch that only changes the viewed file. An empty
// name means idle.
func FilePatch(name string) Patch {
	p := Patch{FileSet: true}
	if name != "" {
		p.CurrentFile = &name
	}
	return p
}

// RecordPatch returns a patch carrying every field of r.
func RecordPatch(r model.PresenceRecord) Patch {
	return Patch{
		UserID:      &r.UserID,
		Username:    &r.Username,
		AvatarURL:   &r.AvatarURL,
		Color:       &r.Color,
		JoinedAt:    &r.JoinedAt,
		FileSet:     true,
		CurrentFile: r.CurrentFile,
	}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.UserID == nil && p.Username == nil && p.AvatarURL == nil &&
		p.Color == nil && p.JoinedAt == nil && !p.FileSet
}

// Apply merges the patch over r and returns the result.
func (p Patch) Apply(r model.PresenceRecord) model.PresenceRecord {
	if p.UserID != nil {
		r.UserID = *p.UserID
	}
	if p.Username != nil {
		r.Username = *p.Username
	}
	if p.AvatarURL != nil {
		r.AvatarURL = *p.AvatarURL
	}
	if p.Color != nil {
		r.Color = *p.Color
	}
	if p.JoinedAt != nil {
		r.JoinedAt = *p.JoinedAt
	}
	if p.FileSet {
		if p.CurrentFile == nil {
			r.CurrentFile = nil
		} else {
			name := *p.CurrentFile
			r.CurrentFile = &name
		}
	}
	return r
}

func (p Patch) fields() map[string]any {
	f := make(map[string]any)
	if p.UserID != nil {
		f["userId"] = *p.UserID
	}
	if p.Username != nil {
		f["username"] = *p.Username
	}
	if p.AvatarURL != nil {
		f["avatarUrl"] = *p.AvatarURL
	}
	if p.Color != nil {
		f["color"] = *p.Color
	}
	if p.JoinedAt != nil {
		f["joinedAt"] = *p.JoinedAt
	}
	if p.FileSet {
		f["currentFile"] = p.CurrentFile
	}
	return f
}

func parsePatch(fields map[string]json.RawMessage) (Patch, error) {
	var p Patch
	strs := []struct {
		key string
		dst **string
	}{
		{"userId", &p.UserID},
		{"username", &p.Username},
		{"avatarUrl", &p.AvatarURL},
		{"color", &p.Color},
	}
	for _, s := range strs {
		raw, ok := fields[s.key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return Patch{}, fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = &v
	}

	if raw, ok := fields["joinedAt"]; ok {
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return Patch{}, fmt.Errorf("joinedAt: %w", err)
		}
		p.JoinedAt = &v
	}

	if raw, ok := fields["currentFile"]; ok {
		p.FileSet = true
		if err := json.Unmarshal(raw, &p.CurrentFile); err != nil {
			return Patch{}, fmt.Errorf("currentFile: %w", err)
		}
	}
	return p, nil
}
