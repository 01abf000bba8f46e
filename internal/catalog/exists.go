package catalog

import (
	"database/sql"

	"github.com/llehouerou/attune/internal/match"
)

// CheckTrackExists looks for a confident match of title/artist in the
// catalog. It probes every title variation against every artist alias
// and scores candidates with track confidence; a result below threshold
// means the track is treated as missing. The best confidence is returned
// either way so callers can log near misses.
func (s *Store) CheckTrackExists(title, artist string, threshold float64, server ServerSource) (*TrackMatch, float64, error) {
	var best *TrackMatch
	bestConfidence := 0.0

	artistVariations := match.ArtistVariations(artist)
	for _, titleVariation := range match.TrackTitleVariations(title) {
		var candidates []TrackMatch
		for _, artistVariation := range artistVariations {
			found, err := s.SearchTracks(titleVariation, artistVariation, 20, server)
			if err != nil {
				return nil, 0, err
			}
			candidates = append(candidates, found...)
		}

		for i := range candidates {
			confidence := match.TrackConfidence(title, artist, candidates[i].Title, candidates[i].ArtistName)
			if confidence > bestConfidence {
				bestConfidence = confidence
				best = &candidates[i]
			}
		}
	}

	if best != nil && bestConfidence >= threshold {
		s.log.Debug("track match",
			"title", title, "matched", best.Title, "confidence", bestConfidence)
		return best, bestConfidence, nil
	}
	return nil, bestConfidence, nil
}

// CheckAlbumExists looks for a confident album match, edition variants
// included. expectedTracks feeds edition scoring when the caller knows the
// release's track count; zero means unknown. When no title variation
// lands, it falls back to enumerating the artist's albums outright and
// rescoring those, which sidesteps LIKE's blindness to diacritics.
func (s *Store) CheckAlbumExists(title, artist string, threshold float64, expectedTracks int, server ServerSource) (*AlbumMatch, float64, error) {
	var best *AlbumMatch
	bestConfidence := 0.0

	score := func(albums []AlbumMatch) {
		for i := range albums {
			confidence := match.AlbumConfidence(title, artist,
				albums[i].Title, albums[i].ArtistName, expectedTracks, albums[i].TrackCount)
			if confidence > bestConfidence {
				bestConfidence = confidence
				best = &albums[i]
			}
		}
	}

	artistVariations := match.ArtistVariations(artist)
	for _, titleVariation := range match.AlbumTitleVariations(title) {
		var albums []AlbumMatch
		seen := make(map[string]bool)
		for _, artistVariation := range artistVariations {
			found, err := s.SearchAlbums(titleVariation, artistVariation, 10, server)
			if err != nil {
				return nil, 0, err
			}
			for _, a := range found {
				if !seen[a.ID] {
					seen[a.ID] = true
					albums = append(albums, a)
				}
			}
		}
		score(albums)
	}

	if best != nil && bestConfidence >= threshold {
		return best, bestConfidence, nil
	}

	// Broad fallback over everything the artist has.
	var albums []AlbumMatch
	seen := make(map[string]bool)
	for _, artistVariation := range artistVariations {
		found, err := s.SearchAlbums("", artistVariation, 100, server)
		if err != nil {
			return nil, 0, err
		}
		for _, a := range found {
			if !seen[a.ID] {
				seen[a.ID] = true
				albums = append(albums, a)
			}
		}
	}
	score(albums)

	if best != nil && bestConfidence >= threshold {
		s.log.Debug("album matched via artist fallback",
			"title", title, "matched", best.Title, "confidence", bestConfidence)
		return best, bestConfidence, nil
	}
	return nil, bestConfidence, nil
}

// CheckAlbumCompleteness compares owned track rows against the album's
// expected count. Complete means at least 90% owned; when no expected
// count is known, any owned track counts as complete.
func (s *Store) CheckAlbumCompleteness(albumID string, expectedTracks int) (owned, expected int, complete bool, err error) {
	conn, err := s.open()
	if err != nil {
		return 0, 0, false, err
	}
	defer conn.Close()

	if err := conn.QueryRow(
		"SELECT COUNT(*) FROM tracks WHERE album_id = ?", albumID).Scan(&owned); err != nil {
		return 0, 0, false, err
	}

	var stored sql.NullInt64
	err = conn.QueryRow("SELECT track_count FROM albums WHERE id = ?", albumID).Scan(&stored)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}

	expected = expectedTracks
	if expected == 0 {
		expected = int(stored.Int64)
	}

	if expected > 0 {
		complete = owned > 0 && float64(owned)/float64(expected) >= 0.9
	} else {
		complete = owned > 0
	}
	return owned, expected, complete, nil
}

// AlbumCompletionStats aggregates ownership across every album, for one
// server or all of them.
func (s *Store) AlbumCompletionStats(server ServerSource) (CompletionStats, error) {
	conn, err := s.open()
	if err != nil {
		return CompletionStats{}, err
	}
	defer conn.Close()

	query := `
		SELECT albums.track_count, COUNT(tracks.id)
		FROM albums
		LEFT JOIN tracks ON tracks.album_id = albums.id`
	var args []any
	if server != "" {
		query += " WHERE albums.server_source = ?"
		args = append(args, string(server))
	}
	query += " GROUP BY albums.id, albums.track_count"

	rows, err := conn.Query(query, args...)
	if err != nil {
		return CompletionStats{}, err
	}
	defer rows.Close()

	var stats CompletionStats
	for rows.Next() {
		var expected sql.NullInt64
		var owned int
		if err := rows.Scan(&expected, &owned); err != nil {
			return stats, err
		}

		stats.TotalAlbums++
		stats.OwnedTracks += owned
		stats.ExpectedTracks += int(expected.Int64)

		switch {
		case expected.Int64 > 0:
			if owned > 0 && float64(owned)/float64(expected.Int64) >= 0.9 {
				stats.CompleteAlbums++
			}
		case owned > 0:
			stats.CompleteAlbums++
		}
	}
	return stats, rows.Err()
}
