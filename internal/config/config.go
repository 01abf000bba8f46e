// Package config loads attune configuration from TOML files, a .env file
// and environment overrides, and applies container path/URL rewrites.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "attune"

// Backend names accepted in media_server.backend.
const (
	BackendJellyfin = "jellyfin"
	BackendPlex     = "plex"
)

type Config struct {
	Database     DatabaseConfig     `koanf:"database"`
	Soulseek     SoulseekConfig     `koanf:"soulseek"`
	MediaServer  MediaServerConfig  `koanf:"media_server"`
	Jellyfin     JellyfinConfig     `koanf:"jellyfin"`
	Plex         PlexConfig         `koanf:"plex"`
	PlaylistSync PlaylistSyncConfig `koanf:"playlist_sync"`
	Lastfm       LastfmConfig       `koanf:"lastfm"`
	Matching     MatchingConfig     `koanf:"matching"`
}

// DatabaseConfig locates the catalog database. Resolution order:
// DATABASE_PATH env var, then this key, then the XDG data default.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SoulseekConfig holds the slskd daemon connection and search tuning.
type SoulseekConfig struct {
	URL                 string `koanf:"url"`                   // e.g., "http://localhost:5030"
	APIKey              string `koanf:"api_key"`               // API key from slskd settings
	SearchTimeout       int    `koanf:"search_timeout"`        // daemon-side deadline, seconds (default: 30)
	SearchTimeoutBuffer int    `koanf:"search_timeout_buffer"` // extra polling window, seconds (default: 10)
	TransferPath        string `koanf:"transfer_path"`         // where slskd lands completed downloads
}

// MediaServerConfig selects the active backend.
type MediaServerConfig struct {
	Backend string `koanf:"backend"` // "jellyfin" or "plex" (default: "jellyfin")
}

// JellyfinConfig holds Jellyfin server credentials.
type JellyfinConfig struct {
	URL          string `koanf:"url"`
	APIKey       string `koanf:"api_key"`
	MusicLibrary string `koanf:"music_library"` // library name (default: "Music")
}

// PlexConfig holds Plex server credentials.
type PlexConfig struct {
	URL          string `koanf:"url"`
	Token        string `koanf:"token"`
	MusicLibrary string `koanf:"music_library"` // section name (default: "Music")
}

// PlaylistSyncConfig tunes playlist mirroring.
type PlaylistSyncConfig struct {
	CreateBackup    *bool `koanf:"create_backup"`    // keep a transient backup during update (default: true)
	DownloadMissing *bool `koanf:"download_missing"` // queue unmatched tracks for download (default: true)
}

// LastfmConfig holds Last.fm API credentials. Discovery is enabled only
// when both are set.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// MatchingConfig holds fuzzy-match acceptance thresholds.
type MatchingConfig struct {
	TrackThreshold float64 `koanf:"track_threshold"` // default: 0.7
	AlbumThreshold float64 `koanf:"album_threshold"` // default: 0.8
}

func Load() (*Config, error) {
	// Best effort; environment overrides work without a .env file.
	_ = godotenv.Load()

	return loadPaths(getConfigPaths())
}

func loadPaths(paths []string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		c.Database.Path = path
	}
	if c.Database.Path == "" {
		if path, err := xdg.DataFile(filepath.Join(appName, appName+".db")); err == nil {
			c.Database.Path = path
		}
	}
	c.Database.Path = expandPath(c.Database.Path)

	// Normalize server URLs (remove trailing slash)
	c.Soulseek.URL = strings.TrimSuffix(c.Soulseek.URL, "/")
	c.Jellyfin.URL = strings.TrimSuffix(c.Jellyfin.URL, "/")
	c.Plex.URL = strings.TrimSuffix(c.Plex.URL, "/")

	if c.Soulseek.TransferPath == "" {
		c.Soulseek.TransferPath = "./Transfer"
	}
	c.Soulseek.TransferPath = expandPath(c.Soulseek.TransferPath)

	if inContainer() {
		c.Soulseek.URL = containerURL(c.Soulseek.URL)
		c.Soulseek.TransferPath = containerPath(c.Soulseek.TransferPath)
	}

	c.MediaServer.Backend = strings.ToLower(strings.TrimSpace(c.MediaServer.Backend))
	if c.MediaServer.Backend == "" {
		c.MediaServer.Backend = BackendJellyfin
	}
	if c.Jellyfin.MusicLibrary == "" {
		c.Jellyfin.MusicLibrary = "Music"
	}
	if c.Plex.MusicLibrary == "" {
		c.Plex.MusicLibrary = "Music"
	}
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/attune/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func inContainer() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// containerURL points loopback daemon URLs at the container host.
func containerURL(url string) string {
	url = strings.Replace(url, "localhost", "host.docker.internal", 1)
	return strings.Replace(url, "127.0.0.1", "host.docker.internal", 1)
}

// containerPath maps a Windows drive root (X:/ or X:\) onto the /host/mnt
// bind mount used inside the container.
func containerPath(path string) string {
	if len(path) < 3 || path[1] != ':' {
		return path
	}
	drive := path[0]
	if !(drive >= 'a' && drive <= 'z' || drive >= 'A' && drive <= 'Z') {
		return path
	}
	rest := strings.ReplaceAll(path[2:], `\`, "/")
	return "/host/mnt/" + strings.ToLower(string(drive)) + rest
}

// HasSoulseekConfig returns true if the slskd daemon is configured.
func (c *Config) HasSoulseekConfig() bool {
	return c.Soulseek.URL != "" && c.Soulseek.APIKey != ""
}

// HasLastfmConfig returns true if Last.fm discovery is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetSoulseekConfig returns the soulseek configuration with defaults applied.
func (c *Config) GetSoulseekConfig() SoulseekConfig {
	cfg := c.Soulseek

	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 30
	}
	if cfg.SearchTimeoutBuffer <= 0 {
		cfg.SearchTimeoutBuffer = 10
	}

	return cfg
}

// GetMatchingConfig returns the matching thresholds with defaults applied.
func (c *Config) GetMatchingConfig() MatchingConfig {
	cfg := c.Matching

	if cfg.TrackThreshold <= 0 || cfg.TrackThreshold > 1 {
		cfg.TrackThreshold = 0.7
	}
	if cfg.AlbumThreshold <= 0 || cfg.AlbumThreshold > 1 {
		cfg.AlbumThreshold = 0.8
	}

	return cfg
}

// CreateBackup reports whether playlist updates should keep a transient
// backup copy. Defaults to true when unset.
func (c *Config) CreateBackup() bool {
	if c.PlaylistSync.CreateBackup == nil {
		return true
	}
	return *c.PlaylistSync.CreateBackup
}

// DownloadMissing reports whether unmatched playlist tracks should be
// queued for download. Defaults to true when unset.
func (c *Config) DownloadMissing() bool {
	if c.PlaylistSync.DownloadMissing == nil {
		return true
	}
	return *c.PlaylistSync.DownloadMissing
}
