// Package catalog is the local mirror of media-server libraries plus the
// app's own state: wishlist, watchlist, preferences and the discovery
// cache. Every operation opens its own connection so concurrent syncs
// contend only on sqlite's own locking.
package catalog

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/attune/internal/db"
)

// ServerSource tags catalog rows with the media server they mirror, so two
// backends can share one database without clobbering each other.
type ServerSource string

const (
	// SourcePrimary is the Plex backend.
	SourcePrimary ServerSource = "primary"
	// SourceSecondary is the Jellyfin backend.
	SourceSecondary ServerSource = "secondary"
)

// Store provides catalog access. The zero value is unusable; use Open.
type Store struct {
	path string
	log  *log.Logger
}

// Open initializes the catalog at path, creating the schema and running
// pending migrations.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{path: path, log: logger.With("component", "catalog")}

	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := initSchema(conn); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open() (*sql.DB, error) {
	return db.Open(s.path)
}
