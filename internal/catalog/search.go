package catalog

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/llehouerou/attune/internal/db"
	"github.com/llehouerou/attune/internal/match"
)

const trackSelect = `
	SELECT tracks.id, tracks.album_id, tracks.artist_id, tracks.title,
		tracks.track_number, tracks.duration, tracks.file_path, tracks.bitrate,
		tracks.server_source, tracks.created_at, tracks.updated_at,
		artists.name, albums.title
	FROM tracks
	JOIN artists ON tracks.artist_id = artists.id
	JOIN albums ON tracks.album_id = albums.id`

const albumSelect = `
	SELECT albums.id, albums.artist_id, albums.title, albums.year,
		albums.thumb_url, albums.genres, albums.track_count, albums.duration,
		albums.server_source, albums.created_at, albums.updated_at,
		artists.name
	FROM albums
	JOIN artists ON albums.artist_id = artists.id`

func scanTrackMatch(row rowScanner) (TrackMatch, error) {
	var (
		t                       TrackMatch
		albumID, artistID, path sql.NullString
		number, duration, rate  sql.NullInt64
		server                  string
		created, updated        int64
	)
	err := row.Scan(&t.ID, &albumID, &artistID, &t.Title,
		&number, &duration, &path, &rate,
		&server, &created, &updated,
		&t.ArtistName, &t.AlbumTitle)
	if err != nil {
		return t, err
	}
	t.AlbumID = db.NullStringValue(albumID)
	t.ArtistID = db.NullStringValue(artistID)
	t.TrackNumber = int(db.NullInt64Value(number))
	t.DurationMS = int(db.NullInt64Value(duration))
	t.FilePath = db.NullStringValue(path)
	t.Bitrate = int(db.NullInt64Value(rate))
	t.Server = ServerSource(server)
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	return t, nil
}

func collectTracks(rows *sql.Rows) ([]TrackMatch, error) {
	var tracks []TrackMatch
	for rows.Next() {
		t, err := scanTrackMatch(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func scanAlbumMatch(row rowScanner) (AlbumMatch, error) {
	var (
		a                Album
		m                AlbumMatch
		thumb, genres    sql.NullString
		year, count, dur sql.NullInt64
		server           string
		created, updated int64
	)
	err := row.Scan(&a.ID, &a.ArtistID, &a.Title, &year,
		&thumb, &genres, &count, &dur,
		&server, &created, &updated,
		&m.ArtistName)
	if err != nil {
		return m, err
	}
	a.Year = int(db.NullInt64Value(year))
	a.ThumbURL = db.NullStringValue(thumb)
	a.Genres = decodeGenres(genres)
	a.TrackCount = int(db.NullInt64Value(count))
	a.DurationMS = int(db.NullInt64Value(dur))
	a.Server = ServerSource(server)
	a.CreatedAt = time.Unix(created, 0)
	a.UpdatedAt = time.Unix(updated, 0)
	m.Album = a
	return m, nil
}

func collectAlbums(rows *sql.Rows) ([]AlbumMatch, error) {
	var albums []AlbumMatch
	for rows.Next() {
		a, err := scanAlbumMatch(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// SearchTracks finds tracks by title and/or artist. It escalates through
// three strategies: a plain LIKE match, then an accent-insensitive
// containment filter over a wider LIKE net, then word-level fuzzy matching
// scored by how many query words hit. Server narrows the search when set.
func (s *Store) SearchTracks(title, artist string, limit int, server ServerSource) ([]TrackMatch, error) {
	if title == "" && artist == "" {
		return nil, nil
	}

	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tracks, err := s.searchTracksBasic(conn, title, artist, limit, server)
	if err != nil {
		return nil, err
	}
	if len(tracks) > 0 {
		return tracks, nil
	}

	tracks, err = s.searchTracksNormalized(conn, title, artist, limit, server)
	if err != nil {
		return nil, err
	}
	if len(tracks) > 0 {
		s.log.Debug("normalized track search hit", "title", title, "artist", artist, "results", len(tracks))
		return tracks, nil
	}

	tracks, err = s.searchTracksFuzzy(conn, title, artist, limit)
	if err != nil {
		return nil, err
	}
	if len(tracks) > 0 {
		s.log.Debug("fuzzy track search hit", "title", title, "artist", artist, "results", len(tracks))
	}
	return tracks, nil
}

func (s *Store) searchTracksBasic(conn *sql.DB, title, artist string, limit int, server ServerSource) ([]TrackMatch, error) {
	var conds []string
	var args []any
	if title != "" {
		conds = append(conds, "tracks.title LIKE ?")
		args = append(args, "%"+title+"%")
	}
	if artist != "" {
		conds = append(conds, "artists.name LIKE ?")
		args = append(args, "%"+artist+"%")
	}
	if server != "" {
		conds = append(conds, "tracks.server_source = ?")
		args = append(args, string(server))
	}
	args = append(args, limit)

	rows, err := conn.Query(trackSelect+`
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY tracks.title, artists.name
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTracks(rows)
}

// searchTracksNormalized casts a wider LOWER(...) LIKE net with
// accent-stripped terms, then confirms each row with normalized
// containment. Catches cases like "Sigur Ros" against "Sigur Rós".
func (s *Store) searchTracksNormalized(conn *sql.DB, title, artist string, limit int, server ServerSource) ([]TrackMatch, error) {
	titleNorm := match.Normalize(title)
	artistNorm := match.Normalize(artist)

	var conds []string
	var args []any
	if title != "" {
		conds = append(conds, "LOWER(tracks.title) LIKE ?")
		args = append(args, "%"+titleNorm+"%")
	}
	if artist != "" {
		conds = append(conds, "LOWER(artists.name) LIKE ?")
		args = append(args, "%"+artistNorm+"%")
	}
	if server != "" {
		conds = append(conds, "tracks.server_source = ?")
		args = append(args, string(server))
	}
	args = append(args, limit*2)

	rows, err := conn.Query(trackSelect+`
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY tracks.title, artists.name
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := collectTracks(rows)
	if err != nil {
		return nil, err
	}

	var tracks []TrackMatch
	for _, t := range candidates {
		titleOK := title == "" || strings.Contains(match.Normalize(t.Title), titleNorm)
		artistOK := artist == "" || strings.Contains(match.Normalize(t.ArtistName), artistNorm)
		if titleOK && artistOK {
			tracks = append(tracks, t)
			if len(tracks) >= limit {
				break
			}
		}
	}
	return tracks, nil
}

// searchTracksFuzzy ORs individual query words against title and artist,
// then ranks rows by how many words actually landed.
func (s *Store) searchTracksFuzzy(conn *sql.DB, title, artist string, limit int) ([]TrackMatch, error) {
	var terms []string
	for _, src := range []string{title, artist} {
		for _, w := range strings.Fields(strings.ToLower(src)) {
			if len(w) >= 3 {
				terms = append(terms, w)
			}
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}

	queryTerms := terms
	if len(queryTerms) > 5 {
		queryTerms = queryTerms[:5]
	}

	var conds []string
	var args []any
	for _, term := range queryTerms {
		conds = append(conds, "(LOWER(tracks.title) LIKE ? OR LOWER(artists.name) LIKE ?)")
		args = append(args, "%"+term+"%", "%"+term+"%")
	}
	args = append(args, limit*3)

	rows, err := conn.Query(trackSelect+`
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY tracks.title, artists.name
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := collectTracks(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		track TrackMatch
		hits  int
	}
	var ranked []scored
	for _, t := range candidates {
		titleLower := strings.ToLower(t.Title)
		artistLower := strings.ToLower(t.ArtistName)
		hits := 0
		for _, term := range terms {
			if strings.Contains(titleLower, term) || strings.Contains(artistLower, term) {
				hits++
			}
		}
		if hits > 0 {
			ranked = append(ranked, scored{t, hits})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].hits > ranked[j].hits })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	tracks := make([]TrackMatch, 0, len(ranked))
	for _, r := range ranked {
		tracks = append(tracks, r.track)
	}
	return tracks, nil
}

// SearchAlbums finds albums by title and/or artist with plain LIKE
// matching.
func (s *Store) SearchAlbums(title, artist string, limit int, server ServerSource) ([]AlbumMatch, error) {
	if title == "" && artist == "" {
		return nil, nil
	}

	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var conds []string
	var args []any
	if title != "" {
		conds = append(conds, "albums.title LIKE ?")
		args = append(args, "%"+title+"%")
	}
	if artist != "" {
		conds = append(conds, "artists.name LIKE ?")
		args = append(args, "%"+artist+"%")
	}
	if server != "" {
		conds = append(conds, "albums.server_source = ?")
		args = append(args, string(server))
	}
	args = append(args, limit)

	rows, err := conn.Query(albumSelect+`
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY albums.title, artists.name
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// SearchArtists finds artists by name.
func (s *Store) SearchArtists(query string, limit int) ([]Artist, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(`
		SELECT id, name, thumb_url, genres, summary, server_source, created_at, updated_at
		FROM artists
		WHERE name LIKE ?
		ORDER BY name
		LIMIT ?`, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, *a)
	}
	return artists, rows.Err()
}
