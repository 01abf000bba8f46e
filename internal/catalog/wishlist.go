package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/llehouerou/attune/internal/db"
)

var errMissingTrackID = errors.New("wishlist entry needs a track id")

func firstArtist(artists []string) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0]
}

func encodeContext(ctx map[string]string) any {
	if len(ctx) == 0 {
		return nil
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeContext(raw sql.NullString) map[string]string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var ctx map[string]string
	if err := json.Unmarshal([]byte(raw.String), &ctx); err != nil {
		return nil
	}
	return ctx
}

// AddToWishlist records a track that could not be downloaded. Duplicates
// are detected by case-insensitive (name, primary artist), not by id, so
// the same song reached through two providers stays a single row. Returns
// false when the track was already listed.
func (s *Store) AddToWishlist(t WishlistTrack) (bool, error) {
	if t.TrackID == "" {
		return false, errMissingTrackID
	}

	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	rows, err := conn.Query("SELECT id, name, artists FROM wishlist_tracks")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	newName := strings.ToLower(t.Name)
	newArtist := strings.ToLower(firstArtist(t.Artists))
	for rows.Next() {
		var id int64
		var name string
		var artistsJSON sql.NullString
		if err := rows.Scan(&id, &name, &artistsJSON); err != nil {
			return false, err
		}
		existing := decodeGenres(artistsJSON)
		if strings.ToLower(name) == newName && strings.ToLower(firstArtist(existing)) == newArtist {
			s.log.Debug("skipping duplicate wishlist entry",
				"name", t.Name, "artist", firstArtist(t.Artists), "existing_id", id)
			return false, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	artists, err := json.Marshal(t.Artists)
	if err != nil {
		return false, err
	}
	sourceType := t.SourceType
	if sourceType == "" {
		sourceType = "manual"
	}

	_, err = conn.Exec(`
		INSERT OR REPLACE INTO wishlist_tracks
			(track_id, name, artists, album_name, duration_ms, track_data,
			 failure_reason, source_type, source_context, date_added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TrackID, t.Name, string(artists), nullable(t.AlbumName), zeroNull(t.DurationMS),
		t.TrackData, nullable(t.FailureReason), sourceType, encodeContext(t.SourceContext),
		time.Now().Unix())
	if err != nil {
		return false, err
	}

	s.log.Info("added track to wishlist", "name", t.Name, "artist", firstArtist(t.Artists))
	return true, nil
}

// RemoveFromWishlist deletes one entry by track id.
func (s *Store) RemoveFromWishlist(trackID string) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	res, err := conn.Exec("DELETE FROM wishlist_tracks WHERE track_id = ?", trackID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// WishlistTracks lists entries oldest first, so retries work through the
// backlog in arrival order. limit <= 0 means all.
func (s *Store) WishlistTracks(limit int) ([]WishlistTrack, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT id, track_id, name, artists, album_name, duration_ms, track_data,
			failure_reason, retry_count, source_type, source_context,
			date_added, last_attempted
		FROM wishlist_tracks
		ORDER BY date_added`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []WishlistTrack
	for rows.Next() {
		var (
			t                      WishlistTrack
			artists, album, reason sql.NullString
			sourceCtx              sql.NullString
			duration               sql.NullInt64
			added                  int64
			attempted              sql.NullInt64
		)
		err := rows.Scan(&t.ID, &t.TrackID, &t.Name, &artists, &album, &duration,
			&t.TrackData, &reason, &t.RetryCount, &t.SourceType, &sourceCtx,
			&added, &attempted)
		if err != nil {
			return nil, err
		}
		t.Artists = decodeGenres(artists)
		t.AlbumName = db.NullStringValue(album)
		t.DurationMS = int(db.NullInt64Value(duration))
		t.FailureReason = db.NullStringValue(reason)
		t.SourceContext = decodeContext(sourceCtx)
		t.DateAdded = time.Unix(added, 0)
		if attempted.Valid {
			t.LastAttempted = time.Unix(attempted.Int64, 0)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// UpdateWishlistRetry records the outcome of a retry attempt: success
// deletes the row, failure bumps the counter and keeps the most recent
// reason.
func (s *Store) UpdateWishlistRetry(trackID string, success bool, reason string) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var res sql.Result
	if success {
		res, err = conn.Exec("DELETE FROM wishlist_tracks WHERE track_id = ?", trackID)
	} else {
		res, err = conn.Exec(`
			UPDATE wishlist_tracks
			SET retry_count = retry_count + 1,
				last_attempted = ?,
				failure_reason = COALESCE(?, failure_reason)
			WHERE track_id = ?`,
			time.Now().Unix(), nullable(reason), trackID)
	}
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// WishlistCount returns the number of pending entries.
func (s *Store) WishlistCount() (int, error) {
	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var n int
	err = conn.QueryRow("SELECT COUNT(*) FROM wishlist_tracks").Scan(&n)
	return n, err
}

// ClearWishlist removes every entry and reports how many were dropped.
func (s *Store) ClearWishlist() (int64, error) {
	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	res, err := conn.Exec("DELETE FROM wishlist_tracks")
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	s.log.Info("cleared wishlist", "removed", n)
	return n, nil
}

// RemoveWishlistDuplicates collapses rows sharing (name, primary artist),
// keeping the oldest of each set. Older rows carry the original retry
// history.
func (s *Store) RemoveWishlistDuplicates() (int, error) {
	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	rows, err := conn.Query(`
		SELECT id, name, artists FROM wishlist_tracks ORDER BY date_added ASC`)
	if err != nil {
		return 0, err
	}

	type key struct{ name, artist string }
	seen := make(map[key]bool)
	var duplicates []int64
	for rows.Next() {
		var id int64
		var name string
		var artistsJSON sql.NullString
		if err := rows.Scan(&id, &name, &artistsJSON); err != nil {
			rows.Close()
			return 0, err
		}
		k := key{strings.ToLower(name), strings.ToLower(firstArtist(decodeGenres(artistsJSON)))}
		if seen[k] {
			duplicates = append(duplicates, id)
		} else {
			seen[k] = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range duplicates {
		if _, err := conn.Exec("DELETE FROM wishlist_tracks WHERE id = ?", id); err != nil {
			return 0, err
		}
	}
	if len(duplicates) > 0 {
		s.log.Info("removed wishlist duplicates", "count", len(duplicates))
	}
	return len(duplicates), nil
}
