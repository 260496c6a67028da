// Package model defines the core data types shared across revroom.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// LineKind categorizes a single line of a parsed patch.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdd
	LineRemove
	LineHunkHeader
)

func (k LineKind) String() string {
	switch k {
	case LineContext:
		return "context"
	case LineAdd:
		return "add"
	case LineRemove:
		return "remove"
	case LineHunkHeader:
		return "hunk-header"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind using its wire name.
func (k LineKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name into a kind.
func (k *LineKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "context":
		*k = LineContext
	case "add":
		*k = LineAdd
	case "remove":
		*k = LineRemove
	case "hunk-header":
		*k = LineHunkHeader
	default:
		return fmt.Errorf("unknown line kind %q", b)
	}
	return nil
}

// PatchLine is one rendered record of a patch. Line numbers are 0 when
// not applicable: adds carry only NewLineNumber, removes only
// OldLineNumber, hunk headers neither.
type PatchLine struct {
	Kind          LineKind `json:"kind"`
	Text          string   `json:"text"`
	OldLineNumber int      `json:"oldLineNumber,omitempty"`
	NewLineNumber int      `json:"newLineNumber,omitempty"`
}

// FileEntry is one changed file of a pull request.
type FileEntry struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// RankedFile is a single entry of the scoring service's ranking.
type RankedFile struct {
	Filename       string  `json:"filename"`
	Rank           int     `json:"rank"`
	RerankerScore  float64 `json:"reranker_score"`
	RetrievalScore float64 `json:"retrieval_score"`
	FinalScore     float64 `json:"final_score"`
	Explanation    string  `json:"explanation"`
}

// RankingResponse is the scoring service's ranking payload.
type RankingResponse struct {
	PRID         string       `json:"pr_id,omitempty"`
	RankedFiles  []RankedFile `json:"ranked_files"`
	ProcessingMS int          `json:"processing_ms,omitempty"`
}

// ClusterGroup is a set of files judged semantically related.
type ClusterGroup struct {
	ClusterID int      `json:"cluster_id"`
	Label     string   `json:"label"`
	Files     []string `json:"files"`
	Coherence float64  `json:"coherence"`
}

// ClusterResponse is the scoring service's clustering payload.
type ClusterResponse struct {
	PRID   string         `json:"pr_id,omitempty"`
	Groups []ClusterGroup `json:"groups"`
}

// Ranking is the rank data attached to an enriched file.
type Ranking struct {
	Rank           int     `json:"rank"`
	RerankerScore  float64 `json:"reranker_score"`
	RetrievalScore float64 `json:"retrieval_score"`
	FinalScore     float64 `json:"final_score"`
	Explanation    string  `json:"explanation"`
}

// ClusterRef identifies the cluster a file belongs to.
type ClusterRef struct {
	ID    int    `json:"cluster_id"`
	Label string `json:"label"`
}

// EnrichedFile is a FileEntry joined with optional scoring data. Ranking
// and Cluster are nil when the scoring service had nothing for the file.
type EnrichedFile struct {
	FileEntry
	Ranking *Ranking    `json:"ranking,omitempty"`
	Cluster *ClusterRef `json:"cluster,omitempty"`
}

// Side is the diff column a comment is attached to.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Comment is a single line-scoped discussion entry.
type Comment struct {
	ID           string    `json:"id"`
	PRID         string    `json:"pr_id"`
	Filename     string    `json:"filename"`
	LineNumber   int       `json:"line_number"`
	Side         Side      `json:"side"`
	Author       string    `json:"author"`
	AuthorAvatar string    `json:"author_avatar"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Resolved     bool      `json:"resolved"`
}

// PresenceRecord is the live state of one connected reviewer.
// CurrentFile is nil while the reviewer is idle.
type PresenceRecord struct {
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId"`
	Username     string  `json:"username"`
	AvatarURL    string  `json:"avatarUrl"`
	CurrentFile  *string `json:"currentFile"`
	Color        string  `json:"color"`
	JoinedAt     int64   `json:"joinedAt"`
}

// File returns the viewed file or "" when idle.
func (p PresenceRecord) File() string {
	if p.CurrentFile == nil {
		return ""
	}
	return *p.CurrentFile
}

// PRRef identifies a pull request on the source-control host.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// ID returns the canonical PR identifier, e.g. "octo/widgets#12".
func (r PRRef) ID() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// RoomID returns the presence room shared by everyone reviewing r.
func (r PRRef) RoomID() string {
	return RoomID(r.ID())
}

var roomUnsafe = regexp.MustCompile(`[^A-Za-z0-9-]`)

// RoomID derives the presence room name for a PR identifier. The same
// identifier always maps to the same room.
func RoomID(prID string) string {
	return "pr-" + roomUnsafe.ReplaceAllString(prID, "-")
}

// ViewMode selects the diff projection.
type ViewMode int

const (
	ViewUnified ViewMode = iota
	ViewSplit
)

func (v ViewMode) String() string {
	switch v {
	case ViewUnified:
		return "unified"
	case ViewSplit:
		return "split"
	default:
		return "unknown"
	}
}

// ParseViewMode maps "unified" or "split" to a ViewMode.
func ParseViewMode(s string) (ViewMode, error) {
	switch s {
	case "", "unified":
		return ViewUnified, nil
	case "split":
		return ViewSplit, nil
	}
	return ViewUnified, fmt.Errorf("unknown view mode %q", s)
}
