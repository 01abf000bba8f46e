package catalog

import (
	"database/sql"
	"time"

	"github.com/llehouerou/attune/internal/db"
)

// SaveSimilarArtists caches a batch of similarity edges for one source
// artist. Seeing the same similar artist again bumps its occurrence count,
// which is what ranks cross-watchlist recommendations later.
func (s *Store) SaveSimilarArtists(sourceArtist string, artists []SimilarArtist) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	now := time.Now().Unix()
	return db.WithTx(conn, func(tx *sql.Tx) error {
		for _, a := range artists {
			_, err := tx.Exec(`
				INSERT INTO similar_artists
					(source_artist, similar_name, match_score, similarity_rank, occurrence_count, fetched_at)
				VALUES (?, ?, ?, ?, 1, ?)
				ON CONFLICT (source_artist, similar_name) DO UPDATE SET
					match_score = excluded.match_score,
					similarity_rank = excluded.similarity_rank,
					occurrence_count = occurrence_count + 1,
					fetched_at = excluded.fetched_at`,
				sourceArtist, a.Name, a.MatchScore, a.Rank, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SimilarArtistsFor returns the cached similarity edges for one artist,
// best rank first.
func (s *Store) SimilarArtistsFor(sourceArtist string) ([]SimilarArtist, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(`
		SELECT id, source_artist, similar_name, match_score, similarity_rank, occurrence_count, fetched_at
		FROM similar_artists
		WHERE source_artist = ?
		ORDER BY similarity_rank ASC`, sourceArtist)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSimilar(rows)
}

// HasFreshSimilarArtists reports whether the cache for an artist is recent
// enough to skip a provider round-trip.
func (s *Store) HasFreshSimilarArtists(sourceArtist string, maxAge time.Duration) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var count int
	var fetched sql.NullInt64
	err = conn.QueryRow(`
		SELECT COUNT(*), MAX(fetched_at) FROM similar_artists WHERE source_artist = ?`,
		sourceArtist).Scan(&count, &fetched)
	if err != nil {
		return false, err
	}
	if count == 0 || !fetched.Valid {
		return false, nil
	}
	return time.Since(time.Unix(fetched.Int64, 0)) < maxAge, nil
}

// TopSimilarArtists merges similarity edges across every source artist.
// An artist recommended by several watched artists outranks one with a
// single strong edge.
func (s *Store) TopSimilarArtists(limit int) ([]SimilarArtist, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(`
		SELECT
			MAX(id),
			MAX(source_artist),
			similar_name,
			MAX(match_score),
			CAST(AVG(similarity_rank) AS INTEGER),
			SUM(occurrence_count),
			MAX(fetched_at)
		FROM similar_artists
		GROUP BY similar_name
		ORDER BY SUM(occurrence_count) DESC, AVG(similarity_rank) ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []SimilarArtist
	for rows.Next() {
		var a SimilarArtist
		var fetched int64
		err := rows.Scan(&a.ID, &a.SourceArtist, &a.Name, &a.MatchScore,
			&a.Rank, &a.OccurrenceCount, &fetched)
		if err != nil {
			return nil, err
		}
		a.FetchedAt = time.Unix(fetched, 0)
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

func collectSimilar(rows *sql.Rows) ([]SimilarArtist, error) {
	var artists []SimilarArtist
	for rows.Next() {
		var a SimilarArtist
		var fetched int64
		err := rows.Scan(&a.ID, &a.SourceArtist, &a.Name, &a.MatchScore,
			&a.Rank, &a.OccurrenceCount, &fetched)
		if err != nil {
			return nil, err
		}
		a.FetchedAt = time.Unix(fetched, 0)
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// AddToDiscoveryPool inserts one recommendation, ignoring exact repeats.
// Returns false when the track was already pooled.
func (s *Store) AddToDiscoveryPool(t DiscoveryTrack) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	res, err := conn.Exec(`
		INSERT OR IGNORE INTO discovery_pool
			(artist_name, track_name, album_name, source_artist, match_score, added_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ArtistName, t.TrackName, t.AlbumName, nullable(t.SourceArtist), t.MatchScore,
		time.Now().Unix())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RotateDiscoveryPool trims the oldest entries once the pool exceeds
// maxTracks, keeping recommendations circulating instead of hoarding.
func (s *Store) RotateDiscoveryPool(maxTracks, removeCount int) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM discovery_pool").Scan(&count); err != nil {
		return err
	}
	if count <= maxTracks {
		return nil
	}

	_, err = conn.Exec(`
		DELETE FROM discovery_pool
		WHERE id IN (SELECT id FROM discovery_pool ORDER BY added_at ASC LIMIT ?)`,
		removeCount)
	if err != nil {
		return err
	}
	s.log.Info("rotated discovery pool", "removed", removeCount, "size", count)
	return nil
}

// DiscoveryPoolCount reports how many recommendations are pooled.
func (s *Store) DiscoveryPoolCount() (int, error) {
	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int
	err = conn.QueryRow("SELECT COUNT(*) FROM discovery_pool").Scan(&count)
	return count, err
}

// DiscoveryPoolTracks returns the newest pooled recommendations.
// limit <= 0 means all.
func (s *Store) DiscoveryPoolTracks(limit int) ([]DiscoveryTrack, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := conn.Query(`
		SELECT id, artist_name, track_name, album_name, source_artist, match_score, added_at
		FROM discovery_pool
		ORDER BY added_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []DiscoveryTrack
	for rows.Next() {
		var t DiscoveryTrack
		var source sql.NullString
		var added int64
		err := rows.Scan(&t.ID, &t.ArtistName, &t.TrackName, &t.AlbumName,
			&source, &t.MatchScore, &added)
		if err != nil {
			return nil, err
		}
		t.SourceArtist = source.String
		t.AddedAt = time.Unix(added, 0)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// UpsertRecentRelease records a release spotted for a watched artist;
// seeing it again refreshes the metadata without duplicating the row.
func (s *Store) UpsertRecentRelease(r RecentRelease) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Exec(`
		INSERT INTO recent_releases
			(watchlist_artist_id, album_name, release_date, track_count, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (watchlist_artist_id, album_name) DO UPDATE SET
			release_date = excluded.release_date,
			track_count = excluded.track_count`,
		r.WatchlistArtistID, r.AlbumName, nullable(r.ReleaseDate), r.TrackCount,
		time.Now().Unix())
	return err
}

// RecentReleases lists spotted releases, newest first. limit <= 0 means all.
func (s *Store) RecentReleases(limit int) ([]RecentRelease, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if limit <= 0 {
		limit = -1
	}
	rows, err := conn.Query(`
		SELECT id, watchlist_artist_id, album_name, release_date, track_count, added_at
		FROM recent_releases
		ORDER BY added_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []RecentRelease
	for rows.Next() {
		var r RecentRelease
		var date sql.NullString
		var added int64
		err := rows.Scan(&r.ID, &r.WatchlistArtistID, &r.AlbumName, &date, &r.TrackCount, &added)
		if err != nil {
			return nil, err
		}
		r.ReleaseDate = date.String
		r.AddedAt = time.Unix(added, 0)
		releases = append(releases, r)
	}
	return releases, rows.Err()
}
