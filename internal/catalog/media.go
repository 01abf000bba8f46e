package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/llehouerou/attune/internal/db"
)

// Smart quotes sneak in from provider metadata and break equality against
// server-side names.
var quoteNormalizer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
	"«", `"`, "»", `"`,
)

func normalizeArtistName(name string) string {
	return quoteNormalizer.Replace(name)
}

func encodeGenres(genres []string) any {
	if len(genres) == 0 {
		return nil
	}
	b, err := json.Marshal(genres)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeGenres(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var genres []string
	if err := json.Unmarshal([]byte(raw.String), &genres); err != nil {
		return nil
	}
	return genres
}

// UpsertArtist inserts or refreshes an artist row, keyed by (id, server).
// created_at survives updates.
func (s *Store) UpsertArtist(a Artist) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	name := normalizeArtistName(a.Name)
	now := time.Now().Unix()

	return db.Retry(func() error {
		var exists string
		err := conn.QueryRow(
			"SELECT id FROM artists WHERE id = ? AND server_source = ?",
			a.ID, string(a.Server)).Scan(&exists)
		switch err {
		case nil:
			_, err = conn.Exec(`
				UPDATE artists SET name = ?, thumb_url = ?, genres = ?, summary = ?, updated_at = ?
				WHERE id = ? AND server_source = ?`,
				name, nullable(a.ThumbURL), encodeGenres(a.Genres), nullable(a.Summary), now,
				a.ID, string(a.Server))
			return err
		case sql.ErrNoRows:
			_, err = conn.Exec(`
				INSERT INTO artists (id, name, thumb_url, genres, summary, server_source, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, name, nullable(a.ThumbURL), encodeGenres(a.Genres), nullable(a.Summary),
				string(a.Server), now, now)
			return err
		default:
			return err
		}
	})
}

// UpsertAlbum inserts or refreshes an album row.
func (s *Store) UpsertAlbum(a Album) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	now := time.Now().Unix()
	return db.Retry(func() error {
		var exists string
		err := conn.QueryRow(
			"SELECT id FROM albums WHERE id = ? AND server_source = ?",
			a.ID, string(a.Server)).Scan(&exists)
		switch err {
		case nil:
			_, err = conn.Exec(`
				UPDATE albums SET artist_id = ?, title = ?, year = ?, thumb_url = ?, genres = ?,
					track_count = ?, duration = ?, updated_at = ?
				WHERE id = ? AND server_source = ?`,
				a.ArtistID, a.Title, zeroNull(a.Year), nullable(a.ThumbURL), encodeGenres(a.Genres),
				zeroNull(a.TrackCount), zeroNull(a.DurationMS), now, a.ID, string(a.Server))
			return err
		case sql.ErrNoRows:
			_, err = conn.Exec(`
				INSERT INTO albums (id, artist_id, title, year, thumb_url, genres, track_count, duration, server_source, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.ArtistID, a.Title, zeroNull(a.Year), nullable(a.ThumbURL), encodeGenres(a.Genres),
				zeroNull(a.TrackCount), zeroNull(a.DurationMS), string(a.Server), now, now)
			return err
		default:
			return err
		}
	})
}

// UpsertTrack replaces a track row wholesale. Tracks churn the most during
// scans, so this takes the REPLACE shortcut instead of the select-then-
// update dance.
func (s *Store) UpsertTrack(t Track) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	now := time.Now().Unix()
	return db.Retry(func() error {
		_, err := conn.Exec(`
			INSERT OR REPLACE INTO tracks
				(id, album_id, artist_id, title, track_number, duration, file_path, bitrate, server_source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, nullable(t.AlbumID), nullable(t.ArtistID), t.Title,
			zeroNull(t.TrackNumber), zeroNull(t.DurationMS), nullable(t.FilePath),
			zeroNull(t.Bitrate), string(t.Server), now, now)
		return err
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func zeroNull(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// ArtistByID fetches one artist row.
func (s *Store) ArtistByID(id string) (*Artist, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	row := conn.QueryRow(`
		SELECT id, name, thumb_url, genres, summary, server_source, created_at, updated_at
		FROM artists WHERE id = ?`, id)
	a, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtist(row rowScanner) (*Artist, error) {
	var (
		a                  Artist
		thumb, genres, sum sql.NullString
		server             string
		created, updated   int64
	)
	err := row.Scan(&a.ID, &a.Name, &thumb, &genres, &sum, &server, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.ThumbURL = db.NullStringValue(thumb)
	a.Genres = decodeGenres(genres)
	a.Summary = db.NullStringValue(sum)
	a.Server = ServerSource(server)
	a.CreatedAt = time.Unix(created, 0)
	a.UpdatedAt = time.Unix(updated, 0)
	return &a, nil
}

// TrackExists reports whether a track id is present, optionally scoped to
// one server.
func (s *Store) TrackExists(id string, server ServerSource) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	query := "SELECT 1 FROM tracks WHERE id = ?"
	args := []any{id}
	if server != "" {
		query += " AND server_source = ?"
		args = append(args, string(server))
	}

	var one int
	err = conn.QueryRow(query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TrackByID fetches one track with its joined names.
func (s *Store) TrackByID(id string) (*TrackMatch, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	row := conn.QueryRow(trackSelect+" WHERE tracks.id = ?", id)
	t, err := scanTrackMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AlbumsByArtist lists an artist's albums ordered by year then title.
func (s *Store) AlbumsByArtist(artistID string) ([]AlbumMatch, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(albumSelect+`
		WHERE albums.artist_id = ?
		ORDER BY albums.year, albums.title COLLATE NOCASE`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// TracksByAlbum lists an album's tracks in track order.
func (s *Store) TracksByAlbum(albumID string) ([]TrackMatch, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(trackSelect+`
		WHERE tracks.album_id = ?
		ORDER BY tracks.track_number, tracks.title COLLATE NOCASE`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTracks(rows)
}

// ClearServerData removes one server's mirrored rows, children first so
// the cascade never fires mid-delete. Wishlist and watchlist are
// server-agnostic and survive. The file is compacted only after a large
// purge.
func (s *Store) ClearServerData(server ServerSource) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	var tracksDeleted, albumsDeleted, artistsDeleted int64
	err = db.WithTx(conn, func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM tracks WHERE server_source = ?", string(server))
		if err != nil {
			return err
		}
		tracksDeleted, _ = res.RowsAffected()

		res, err = tx.Exec("DELETE FROM albums WHERE server_source = ?", string(server))
		if err != nil {
			return err
		}
		albumsDeleted, _ = res.RowsAffected()

		res, err = tx.Exec("DELETE FROM artists WHERE server_source = ?", string(server))
		if err != nil {
			return err
		}
		artistsDeleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("cleared server data",
		"server", server,
		"artists", artistsDeleted, "albums", albumsDeleted, "tracks", tracksDeleted)

	if tracksDeleted > 1000 || albumsDeleted > 100 {
		if _, err := conn.Exec("VACUUM"); err != nil {
			s.log.Warn("vacuum after clear failed", "err", err)
		}
	}
	return nil
}

// CleanupOrphans removes albums with no tracks, then artists with neither
// albums nor tracks.
func (s *Store) CleanupOrphans() (albumsRemoved, artistsRemoved int64, err error) {
	conn, err := s.open()
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	res, err := conn.Exec(`
		DELETE FROM albums
		WHERE id NOT IN (SELECT DISTINCT album_id FROM tracks WHERE album_id IS NOT NULL)`)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup albums: %w", err)
	}
	albumsRemoved, _ = res.RowsAffected()

	res, err = conn.Exec(`
		DELETE FROM artists
		WHERE id NOT IN (SELECT DISTINCT artist_id FROM tracks WHERE artist_id IS NOT NULL)
		  AND id NOT IN (SELECT DISTINCT artist_id FROM albums)`)
	if err != nil {
		return albumsRemoved, 0, fmt.Errorf("cleanup artists: %w", err)
	}
	artistsRemoved, _ = res.RowsAffected()

	if albumsRemoved > 0 || artistsRemoved > 0 {
		s.log.Info("removed orphans", "albums", albumsRemoved, "artists", artistsRemoved)
	}
	return albumsRemoved, artistsRemoved, nil
}

// Statistics counts catalog rows, for all servers when server is empty.
func (s *Store) Statistics(server ServerSource) (Stats, error) {
	conn, err := s.open()
	if err != nil {
		return Stats{}, err
	}
	defer conn.Close()

	var stats Stats
	count := func(query string, args ...any) (int, error) {
		var n int
		err := conn.QueryRow(query, args...).Scan(&n)
		return n, err
	}

	if server != "" {
		src := string(server)
		if stats.Artists, err = count("SELECT COUNT(DISTINCT name) FROM artists WHERE server_source = ?", src); err != nil {
			return stats, err
		}
		if stats.Albums, err = count("SELECT COUNT(*) FROM albums WHERE server_source = ?", src); err != nil {
			return stats, err
		}
		stats.Tracks, err = count("SELECT COUNT(*) FROM tracks WHERE server_source = ?", src)
		return stats, err
	}

	if stats.Artists, err = count("SELECT COUNT(DISTINCT name) FROM artists"); err != nil {
		return stats, err
	}
	if stats.Albums, err = count("SELECT COUNT(*) FROM albums"); err != nil {
		return stats, err
	}
	stats.Tracks, err = count("SELECT COUNT(*) FROM tracks")
	return stats, err
}
