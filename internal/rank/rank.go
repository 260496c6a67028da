// Package rank merges the scoring service's ranking and clustering
// results into the changed-file list and orders it for review.
package rank

import (
	"math"
	"slices"

	"github.com/sprite-ai/revroom/internal/model"
)

// Enrich joins files with ranking and clustering data by exact filename.
// Either payload may be nil; the corresponding fields are then left nil
// on every file. The input order is preserved.
func Enrich(files []model.FileEntry, ranking *model.RankingResponse, clustering *model.ClusterResponse) []model.EnrichedFile {
	ranks := make(map[string]model.RankedFile)
	if ranking != nil {
		for _, r := range ranking.RankedFiles {
			if _, seen := ranks[r.Filename]; !seen {
				ranks[r.Filename] = r
			}
		}
	}

	clusters := make(map[string]model.ClusterRef)
	if clustering != nil {
		for _, g := range clustering.Groups {
			for _, name := range g.Files {
				// A file belongs to at most one group; the first one wins.
				if _, seen := clusters[name]; !seen {
					clusters[name] = model.ClusterRef{ID: g.ClusterID, Label: g.Label}
				}
			}
		}
	}

	out := make([]model.EnrichedFile, len(files))
	for i, f := range files {
		ef := model.EnrichedFile{FileEntry: f}
		if r, ok := ranks[f.Filename]; ok {
			ef.Ranking = &model.Ranking{
				Rank:           r.Rank,
				RerankerScore:  r.RerankerScore,
				RetrievalScore: r.RetrievalScore,
				FinalScore:     r.FinalScore,
				Explanation:    r.Explanation,
			}
		}
		if c, ok := clusters[f.Filename]; ok {
			ef.Cluster = &c
		}
		out[i] = ef
	}
	return out
}

// EffectiveRank returns the file's rank, or +Inf when it has none.
func EffectiveRank(f model.EnrichedFile) float64 {
	if f.Ranking == nil {
		return math.Inf(1)
	}
	return float64(f.Ranking.Rank)
}

// FileOrder returns a copy of files in their input order.
func FileOrder(files []model.EnrichedFile) []model.EnrichedFile {
	return slices.Clone(files)
}

// ReviewOrder returns a copy of files sorted ascending by rank. Unranked
// files sort last; equal ranks keep their relative input order.
func ReviewOrder(files []model.EnrichedFile) []model.EnrichedFile {
	out := slices.Clone(files)
	slices.SortStableFunc(out, func(a, b model.EnrichedFile) int {
		ra, rb := EffectiveRank(a), EffectiveRank(b)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return 0
	})
	return out
}

// FilterCluster returns the members of the given cluster in their current
// order. A nil id returns all files.
func FilterCluster(files []model.EnrichedFile, clusterID *int) []model.EnrichedFile {
	if clusterID == nil {
		return files
	}
	out := make([]model.EnrichedFile, 0, len(files))
	for _, f := range files {
		if f.Cluster != nil && f.Cluster.ID == *clusterID {
			out = append(out, f)
		}
	}
	return out
}

// MLUnavailable reports whether neither ranking nor clustering data is
// present, in which case callers show a fallback banner.
func MLUnavailable(ranking *model.RankingResponse, clustering *model.ClusterResponse) bool {
	return ranking == nil && clustering == nil
}

// ScoreTier buckets a final score for display.
type ScoreTier int

const (
	TierMinimal ScoreTier = iota
	TierLow
	TierMedium
	TierHigh
	TierCritical
)

func (t ScoreTier) String() string {
	switch t {
	case TierMinimal:
		return "minimal"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Tier maps a score in [0,1] to its display tier.
func Tier(score float64) ScoreTier {
	switch {
	case score >= 0.8:
		return TierCritical
	case score >= 0.6:
		return TierHigh
	case score >= 0.4:
		return TierMedium
	case score >= 0.2:
		return TierLow
	default:
		return TierMinimal
	}
}
