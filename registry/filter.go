package registry

import (
	"sort"

	"pkg.world.dev/world-engine/arena/types"
)

type SortKey string

const (
	SortCreatedAt SortKey = "createdAt"
	SortStartedAt SortKey = "startedAt"
)

// Filter selects the matches a subscriber is interested in. IDs and Categories are static: they only
// depend on immutable match fields. Phases is dynamic and is evaluated on every mutation. Empty lists
// match everything.
//
// Sort, Descending, Start and End shape the initial frame: matching matches are ordered by Sort and
// only the [Start, End) slice is sent. End <= 0 means no upper bound.
type Filter struct {
	IDs        []string      `json:"ids,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	Phases     []types.Phase `json:"phases,omitempty"`
	Sort       SortKey       `json:"sort,omitempty"`
	Descending bool          `json:"descending,omitempty"`
	Start      int           `json:"start,omitempty"`
	End        int           `json:"end,omitempty"`
}

func (f Filter) MatchesStatic(m *types.Match) bool {
	return contains(f.IDs, m.ID) && contains(f.Categories, m.Category)
}

func (f Filter) MatchesDynamic(m *types.Match) bool {
	return contains(f.Phases, m.Phase)
}

func (f Filter) Matches(m *types.Match) bool {
	return f.MatchesStatic(m) && f.MatchesDynamic(m)
}

// Sliced reports whether the filter restricts the initial frame to a range.
func (f Filter) Sliced() bool {
	return f.Start > 0 || f.End > 0
}

// order sorts matches in place by the filter's key. Matches without a start time sort after every
// started match in ascending order.
func (f Filter) order(matches []*types.Match) {
	key := func(m *types.Match) int64 {
		if f.Sort == SortStartedAt {
			if m.StartUnixTime == nil {
				return 1<<63 - 1
			}
			return *m.StartUnixTime * 1000
		}
		return m.CreatedAt
	}
	sort.SliceStable(matches, func(i, j int) bool {
		ki, kj := key(matches[i]), key(matches[j])
		if ki == kj {
			if f.Descending {
				return matches[i].ID > matches[j].ID
			}
			return matches[i].ID < matches[j].ID
		}
		if f.Descending {
			return ki > kj
		}
		return ki < kj
	})
}

func (f Filter) slice(matches []*types.Match) []*types.Match {
	start, end := f.Start, f.End
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > len(matches) {
		end = len(matches)
	}
	if start >= end {
		return []*types.Match{}
	}
	return matches[start:end]
}

func contains[T comparable](list []T, v T) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
