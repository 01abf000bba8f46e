package catalog

import (
	"database/sql"
	"time"

	"github.com/llehouerou/attune/internal/db"
)

// AddToWatchlist starts monitoring an artist for new releases. Re-adding
// an artist resets the entry with default filters.
func (s *Store) AddToWatchlist(artistID, name string) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Exec(`
		INSERT OR REPLACE INTO watchlist_artists (artist_id, artist_name, date_added)
		VALUES (?, ?, ?)`,
		artistID, name, time.Now().Unix())
	if err != nil {
		return err
	}
	s.log.Info("added artist to watchlist", "artist", name)
	return nil
}

// RemoveFromWatchlist stops monitoring an artist. Cascades to its cached
// recent releases.
func (s *Store) RemoveFromWatchlist(artistID string) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	res, err := conn.Exec("DELETE FROM watchlist_artists WHERE artist_id = ?", artistID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InWatchlist reports whether an artist is monitored.
func (s *Store) InWatchlist(artistID string) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var one int
	err = conn.QueryRow(
		"SELECT 1 FROM watchlist_artists WHERE artist_id = ? LIMIT 1", artistID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const watchlistSelect = `
	SELECT id, artist_id, artist_name, date_added, last_scanned, image_url,
		include_albums, include_eps, include_singles,
		include_live, include_remixes, include_acoustic, include_compilations
	FROM watchlist_artists`

func scanWatchlistArtist(row rowScanner) (WatchlistArtist, error) {
	var (
		w       WatchlistArtist
		scanned sql.NullInt64
		image   sql.NullString
		added   int64
	)
	err := row.Scan(&w.ID, &w.ArtistID, &w.ArtistName, &added, &scanned, &image,
		&w.Filters.Albums, &w.Filters.EPs, &w.Filters.Singles,
		&w.Filters.Live, &w.Filters.Remixes, &w.Filters.Acoustic, &w.Filters.Compilations)
	if err != nil {
		return w, err
	}
	w.DateAdded = time.Unix(added, 0)
	if scanned.Valid {
		w.LastScanned = time.Unix(scanned.Int64, 0)
	}
	w.ImageURL = db.NullStringValue(image)
	return w, nil
}

// WatchlistArtists lists monitored artists, most recently added first.
func (s *Store) WatchlistArtists() ([]WatchlistArtist, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(watchlistSelect + " ORDER BY date_added DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []WatchlistArtist
	for rows.Next() {
		w, err := scanWatchlistArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, w)
	}
	return artists, rows.Err()
}

// WatchlistArtist fetches one monitored artist by id.
func (s *Store) WatchlistArtist(artistID string) (*WatchlistArtist, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	w, err := scanWatchlistArtist(conn.QueryRow(watchlistSelect+" WHERE artist_id = ?", artistID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// WatchlistCount returns how many artists are monitored.
func (s *Store) WatchlistCount() (int, error) {
	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var n int
	err = conn.QueryRow("SELECT COUNT(*) FROM watchlist_artists").Scan(&n)
	return n, err
}

// UpdateReleaseFilters replaces the release-type filters for one artist.
func (s *Store) UpdateReleaseFilters(artistID string, f ReleaseFilters) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	res, err := conn.Exec(`
		UPDATE watchlist_artists
		SET include_albums = ?, include_eps = ?, include_singles = ?,
			include_live = ?, include_remixes = ?, include_acoustic = ?,
			include_compilations = ?
		WHERE artist_id = ?`,
		f.Albums, f.EPs, f.Singles, f.Live, f.Remixes, f.Acoustic, f.Compilations,
		artistID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkWatchlistScanned stamps the artist's last release scan.
func (s *Store) MarkWatchlistScanned(artistID string, at time.Time) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Exec(
		"UPDATE watchlist_artists SET last_scanned = ? WHERE artist_id = ?",
		at.Unix(), artistID)
	return err
}

// UpdateWatchlistImage stores the artist's portrait URL.
func (s *Store) UpdateWatchlistImage(artistID, imageURL string) (bool, error) {
	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	res, err := conn.Exec(
		"UPDATE watchlist_artists SET image_url = ? WHERE artist_id = ?",
		imageURL, artistID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
