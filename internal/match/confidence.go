package match

import (
	"regexp"
	"strings"
)

var artistSplitRe = regexp.MustCompile(`(?i)\s*(?:[,;&/]|\sfeat\.?\s|\sft\.?\s|\sfeaturing\s)\s*`)

// artistSimilarity compares two artist credits after normalization. The
// library side may carry several artists in one string ("A, B & C"); each
// component is scored and the best wins over the whole-string score.
func artistSimilarity(search, db string) float64 {
	ns, nd := Normalize(search), Normalize(db)
	best := Similarity(ns, nd)
	for _, part := range artistSplitRe.Split(" "+nd+" ", -1) {
		part = strings.TrimSpace(part)
		if part == "" || part == nd {
			continue
		}
		if s := Similarity(ns, part); s > best {
			best = s
		}
	}
	return best
}

// AlbumConfidence scores how well a library album matches a searched one.
// The title contributes half the score (best of raw, cleaned and
// normalized similarity), the artist the other half; a weak artist match
// (< 0.6) scales the whole score down to 30%. When the expected track
// count is known and the cleaned titles agree (>= 0.8), owning at least
// the expected tracks earns an edition-upgrade bonus of up to 0.15, while
// owning fewer than 80% of them costs 0.1.
func AlbumConfidence(searchTitle, searchArtist, dbTitle, dbArtist string, expectedTracks, dbTracks int) float64 {
	rawSim := Similarity(strings.ToLower(strings.TrimSpace(searchTitle)), strings.ToLower(strings.TrimSpace(dbTitle)))
	cleanSim := Similarity(CleanAlbumTitle(searchTitle), CleanAlbumTitle(dbTitle))
	normSim := Similarity(Normalize(searchTitle), Normalize(dbTitle))
	titleSim := max(rawSim, cleanSim, normSim)

	artistSim := artistSimilarity(searchArtist, dbArtist)

	conf := 0.5*titleSim + 0.5*artistSim
	if artistSim < 0.6 {
		conf *= 0.3
	}

	if expectedTracks > 0 && cleanSim >= 0.8 {
		if dbTracks >= expectedTracks {
			surplus := float64(dbTracks-expectedTracks) / float64(expectedTracks)
			conf += min(0.15, surplus*0.1)
		} else if float64(dbTracks) < 0.8*float64(expectedTracks) {
			conf -= 0.1
		}
	}
	return clamp01(conf)
}

// TrackConfidence scores how well a library track matches a searched one,
// with the same 50/50 title/artist weighting over cleaned and normalized
// titles and the same weak-artist scaling.
func TrackConfidence(searchTitle, searchArtist, dbTitle, dbArtist string) float64 {
	titleSim := Similarity(Normalize(CleanTrackTitle(searchTitle)), Normalize(CleanTrackTitle(dbTitle)))
	artistSim := artistSimilarity(searchArtist, dbArtist)

	conf := 0.5*titleSim + 0.5*artistSim
	if artistSim < 0.6 {
		conf *= 0.3
	}
	return clamp01(conf)
}
