package catalog

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/llehouerou/attune/internal/quality"
)

const qualityProfileKey = "quality_profile"

func kvSet(conn *sql.DB, table, key, value string) error {
	_, err := conn.Exec(`
		INSERT INTO `+table+` (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

func kvGet(conn *sql.DB, table, key string) (string, error) {
	var value string
	err := conn.QueryRow("SELECT value FROM "+table+" WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata stores an internal key/value pair.
func (s *Store) SetMetadata(key, value string) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return kvSet(conn, "metadata", key, value)
}

// Metadata returns a stored value, empty when unset.
func (s *Store) Metadata(key string) (string, error) {
	conn, err := s.open()
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return kvGet(conn, "metadata", key)
}

// SetPreference stores a user-facing setting.
func (s *Store) SetPreference(key, value string) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return kvSet(conn, "preferences", key, value)
}

// Preference returns a user-facing setting, empty when unset.
func (s *Store) Preference(key string) (string, error) {
	conn, err := s.open()
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return kvGet(conn, "preferences", key)
}

// RecordFullRefresh stamps the completion of a full library refresh.
func (s *Store) RecordFullRefresh(at time.Time) error {
	return s.SetMetadata("last_full_refresh", strconv.FormatInt(at.Unix(), 10))
}

// LastFullRefresh returns when the library was last fully refreshed, zero
// when it never was.
func (s *Store) LastFullRefresh() (time.Time, error) {
	raw, err := s.Metadata("last_full_refresh")
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(epoch, 0), nil
}

// QualityProfile loads the stored download quality profile, falling back
// to the balanced default when unset or unreadable.
func (s *Store) QualityProfile() (quality.Profile, error) {
	raw, err := s.Preference(qualityProfileKey)
	if err != nil {
		return quality.Default(), err
	}
	return quality.Parse(raw), nil
}

// SetQualityProfile persists the download quality profile.
func (s *Store) SetQualityProfile(p quality.Profile) error {
	encoded, err := quality.Encode(p)
	if err != nil {
		return err
	}
	if err := s.SetPreference(qualityProfileKey, encoded); err != nil {
		return err
	}
	s.log.Info("quality profile saved", "preset", p.Name)
	return nil
}
