package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/llehouerou/attune/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS artists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	thumb_url TEXT,
	genres TEXT,
	summary TEXT,
	server_source TEXT NOT NULL DEFAULT 'primary',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS albums (
	id TEXT PRIMARY KEY,
	artist_id TEXT NOT NULL,
	title TEXT NOT NULL,
	year INTEGER,
	thumb_url TEXT,
	genres TEXT,
	track_count INTEGER,
	duration INTEGER,
	server_source TEXT NOT NULL DEFAULT 'primary',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (artist_id) REFERENCES artists (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tracks (
	id TEXT PRIMARY KEY,
	album_id TEXT,
	artist_id TEXT,
	title TEXT NOT NULL,
	track_number INTEGER,
	duration INTEGER,
	file_path TEXT,
	bitrate INTEGER,
	server_source TEXT NOT NULL DEFAULT 'primary',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (album_id) REFERENCES albums (id) ON DELETE CASCADE,
	FOREIGN KEY (artist_id) REFERENCES artists (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wishlist_tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	artists TEXT NOT NULL,
	album_name TEXT,
	duration_ms INTEGER,
	track_data TEXT NOT NULL,
	failure_reason TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	source_type TEXT NOT NULL DEFAULT 'manual',
	source_context TEXT,
	date_added INTEGER NOT NULL,
	last_attempted INTEGER
);

CREATE TABLE IF NOT EXISTS watchlist_artists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artist_id TEXT UNIQUE NOT NULL,
	artist_name TEXT NOT NULL,
	date_added INTEGER NOT NULL,
	last_scanned INTEGER,
	image_url TEXT,
	include_albums INTEGER NOT NULL DEFAULT 1,
	include_eps INTEGER NOT NULL DEFAULT 1,
	include_singles INTEGER NOT NULL DEFAULT 1,
	include_live INTEGER NOT NULL DEFAULT 0,
	include_remixes INTEGER NOT NULL DEFAULT 0,
	include_acoustic INTEGER NOT NULL DEFAULT 0,
	include_compilations INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS similar_artists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_artist TEXT NOT NULL,
	similar_name TEXT NOT NULL,
	match_score REAL NOT NULL DEFAULT 0,
	similarity_rank INTEGER NOT NULL DEFAULT 1,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	fetched_at INTEGER NOT NULL,
	UNIQUE (source_artist, similar_name)
);

CREATE TABLE IF NOT EXISTS discovery_pool (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artist_name TEXT NOT NULL,
	track_name TEXT NOT NULL DEFAULT '',
	album_name TEXT NOT NULL DEFAULT '',
	source_artist TEXT,
	match_score REAL NOT NULL DEFAULT 0,
	added_at INTEGER NOT NULL,
	UNIQUE (artist_name, track_name, album_name)
);

CREATE TABLE IF NOT EXISTS recent_releases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	watchlist_artist_id INTEGER NOT NULL,
	album_name TEXT NOT NULL,
	release_date TEXT,
	track_count INTEGER NOT NULL DEFAULT 0,
	added_at INTEGER NOT NULL,
	UNIQUE (watchlist_artist_id, album_name),
	FOREIGN KEY (watchlist_artist_id) REFERENCES watchlist_artists (id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_artists_name ON artists (name);
CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums (artist_id);
CREATE INDEX IF NOT EXISTS idx_albums_title ON albums (title);
CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks (album_id);
CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks (artist_id);
CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks (title);
CREATE INDEX IF NOT EXISTS idx_wishlist_date ON wishlist_tracks (date_added);
CREATE INDEX IF NOT EXISTS idx_similar_source ON similar_artists (source_artist);
CREATE INDEX IF NOT EXISTS idx_discovery_added ON discovery_pool (added_at);
CREATE INDEX IF NOT EXISTS idx_releases_artist ON recent_releases (watchlist_artist_id);
`

func initSchema(conn *sql.DB) error {
	_, err := conn.Exec(schema)
	return err
}

// Metadata markers guarding one-shot migrations.
const idColumnsMigratedKey = "id_columns_migrated"

// migrate brings databases created by older builds up to the current
// schema. Each step checks its own guard and is safe to rerun.
func (s *Store) migrate(conn *sql.DB) error {
	if err := s.addServerSourceColumns(conn); err != nil {
		return fmt.Errorf("server_source migration: %w", err)
	}
	if err := s.migrateIDColumnsToText(conn); err != nil {
		return fmt.Errorf("id type migration: %w", err)
	}
	if err := s.extendWatchlistColumns(conn); err != nil {
		return fmt.Errorf("watchlist migration: %w", err)
	}
	return nil
}

// tableColumns returns the column names of a table.
func tableColumns(conn *sql.DB, table string) (map[string]string, error) {
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return nil, err
		}
		cols[name] = strings.ToUpper(typ)
	}
	return cols, rows.Err()
}

// addServerSourceColumns backfills the server_source column on databases
// that predate multi-server support. The indexes live here rather than in
// the base schema because older databases lack the column until the ALTER
// runs.
func (s *Store) addServerSourceColumns(conn *sql.DB) error {
	for _, table := range []string{"artists", "albums", "tracks"} {
		cols, err := tableColumns(conn, table)
		if err != nil {
			return err
		}
		if _, ok := cols["server_source"]; !ok {
			stmt := fmt.Sprintf(
				"ALTER TABLE %s ADD COLUMN server_source TEXT NOT NULL DEFAULT 'primary'", table)
			if _, err := conn.Exec(stmt); err != nil {
				return err
			}
			s.log.Info("added server_source column", "table", table)
		}
		if _, err := conn.Exec(fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_server ON %s (server_source)", table, table)); err != nil {
			return err
		}
	}
	return nil
}

// migrateIDColumnsToText recreates the media tables with TEXT ids. Early
// builds used INTEGER ids, which truncate GUID-style identifiers. Guarded
// by a metadata marker so the table rebuild runs at most once.
func (s *Store) migrateIDColumnsToText(conn *sql.DB) error {
	var marker string
	err := conn.QueryRow(
		"SELECT value FROM metadata WHERE key = ?", idColumnsMigratedKey).Scan(&marker)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if marker == "true" {
		return nil
	}

	cols, err := tableColumns(conn, "tracks")
	if err != nil {
		return err
	}
	if cols["id"] == "TEXT" {
		// Fresh database, nothing to rebuild.
		return s.setMarker(conn, idColumnsMigratedKey, "true")
	}

	s.log.Info("rebuilding media tables with text ids")

	// FK enforcement must be off for the rebuild: dropping the old parent
	// tables would otherwise cascade into the freshly copied rows.
	if _, err := conn.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		return err
	}
	rebuildErr := db.WithTx(conn, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE artists_new (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				thumb_url TEXT,
				genres TEXT,
				summary TEXT,
				server_source TEXT NOT NULL DEFAULT 'primary',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`INSERT INTO artists_new
				SELECT CAST(id AS TEXT), name, thumb_url, genres, summary,
					COALESCE(server_source, 'primary'), created_at, updated_at
				FROM artists`,
			`CREATE TABLE albums_new (
				id TEXT PRIMARY KEY,
				artist_id TEXT NOT NULL,
				title TEXT NOT NULL,
				year INTEGER,
				thumb_url TEXT,
				genres TEXT,
				track_count INTEGER,
				duration INTEGER,
				server_source TEXT NOT NULL DEFAULT 'primary',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (artist_id) REFERENCES artists (id) ON DELETE CASCADE
			)`,
			`INSERT INTO albums_new
				SELECT CAST(id AS TEXT), CAST(artist_id AS TEXT), title, year, thumb_url,
					genres, track_count, duration, COALESCE(server_source, 'primary'),
					created_at, updated_at
				FROM albums`,
			`CREATE TABLE tracks_new (
				id TEXT PRIMARY KEY,
				album_id TEXT,
				artist_id TEXT,
				title TEXT NOT NULL,
				track_number INTEGER,
				duration INTEGER,
				file_path TEXT,
				bitrate INTEGER,
				server_source TEXT NOT NULL DEFAULT 'primary',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (album_id) REFERENCES albums (id) ON DELETE CASCADE,
				FOREIGN KEY (artist_id) REFERENCES artists (id) ON DELETE CASCADE
			)`,
			`INSERT INTO tracks_new
				SELECT CAST(id AS TEXT), CAST(album_id AS TEXT), CAST(artist_id AS TEXT),
					title, track_number, duration, file_path, bitrate,
					COALESCE(server_source, 'primary'), created_at, updated_at
				FROM tracks`,
			`DROP TABLE tracks`,
			`DROP TABLE albums`,
			`DROP TABLE artists`,
			`ALTER TABLE artists_new RENAME TO artists`,
			`ALTER TABLE albums_new RENAME TO albums`,
			`ALTER TABLE tracks_new RENAME TO tracks`,
			`CREATE INDEX IF NOT EXISTS idx_artists_name ON artists (name)`,
			`CREATE INDEX IF NOT EXISTS idx_artists_server ON artists (server_source)`,
			`CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums (artist_id)`,
			`CREATE INDEX IF NOT EXISTS idx_albums_title ON albums (title)`,
			`CREATE INDEX IF NOT EXISTS idx_albums_server ON albums (server_source)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks (album_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks (artist_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks (title)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_server ON tracks (server_source)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil && rebuildErr == nil {
		rebuildErr = err
	}
	if rebuildErr != nil {
		return rebuildErr
	}
	return s.setMarker(conn, idColumnsMigratedKey, "true")
}

// extendWatchlistColumns adds the per-artist image and release-filter
// columns introduced after the first watchlist shipped.
func (s *Store) extendWatchlistColumns(conn *sql.DB) error {
	cols, err := tableColumns(conn, "watchlist_artists")
	if err != nil {
		return err
	}

	additions := []struct {
		name string
		ddl  string
	}{
		{"image_url", "image_url TEXT"},
		{"include_albums", "include_albums INTEGER NOT NULL DEFAULT 1"},
		{"include_eps", "include_eps INTEGER NOT NULL DEFAULT 1"},
		{"include_singles", "include_singles INTEGER NOT NULL DEFAULT 1"},
		{"include_live", "include_live INTEGER NOT NULL DEFAULT 0"},
		{"include_remixes", "include_remixes INTEGER NOT NULL DEFAULT 0"},
		{"include_acoustic", "include_acoustic INTEGER NOT NULL DEFAULT 0"},
		{"include_compilations", "include_compilations INTEGER NOT NULL DEFAULT 0"},
	}
	for _, add := range additions {
		if _, ok := cols[add.name]; ok {
			continue
		}
		if _, err := conn.Exec("ALTER TABLE watchlist_artists ADD COLUMN " + add.ddl); err != nil {
			return err
		}
		s.log.Info("added watchlist column", "column", add.name)
	}
	return nil
}

func (s *Store) setMarker(conn *sql.DB, key, value string) error {
	_, err := conn.Exec(`
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}
