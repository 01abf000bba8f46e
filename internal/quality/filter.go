package quality

import (
	"sort"

	"github.com/llehouerou/attune/internal/slskd"
)

// Filter walks a profile's enabled tiers in priority order and returns the
// candidates from the first tier that has any. Candidates are bucketed by
// TierOf and size-gated against their own tier's bounds at assignment, so
// a result can never violate the bounds the user set for its tier. When
// every enabled tier is empty and the profile allows fallback, all
// size-passed candidates are returned regardless of tier enablement;
// otherwise the result is empty.
func Filter(candidates []slskd.TrackResult, p Profile) []slskd.TrackResult {
	buckets := make(map[Tier][]slskd.TrackResult, len(Tiers))
	for _, c := range candidates {
		tier := TierOf(c)
		setting, ok := p.Qualities[tier]
		if !ok || !sizeOK(c.Size, setting) {
			continue
		}
		buckets[tier] = append(buckets[tier], c)
	}
	for _, bucket := range buckets {
		sortCandidates(bucket)
	}

	for _, tier := range tiersByPriority(p) {
		if !p.Qualities[tier].Enabled {
			continue
		}
		if bucket := buckets[tier]; len(bucket) > 0 {
			return bucket
		}
	}

	if !p.FallbackEnabled {
		return nil
	}
	var all []slskd.TrackResult
	for _, tier := range Tiers {
		all = append(all, buckets[tier]...)
	}
	sortCandidates(all)
	return all
}

// Best returns the single top candidate under a profile, or false when the
// filter leaves nothing.
func Best(candidates []slskd.TrackResult, p Profile) (slskd.TrackResult, bool) {
	filtered := Filter(candidates, p)
	if len(filtered) == 0 {
		return slskd.TrackResult{}, false
	}
	return filtered[0], true
}

func sortCandidates(ts []slskd.TrackResult) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].QualityScore != ts[j].QualityScore {
			return ts[i].QualityScore > ts[j].QualityScore
		}
		return ts[i].Size > ts[j].Size
	})
}

func tiersByPriority(p Profile) []Tier {
	tiers := make([]Tier, 0, len(p.Qualities))
	for t := range p.Qualities {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool {
		pi, pj := p.Qualities[tiers[i]].Priority, p.Qualities[tiers[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return tiers[i] < tiers[j]
	})
	return tiers
}
