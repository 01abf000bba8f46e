// Package sync reconciles remote playlists against the media server. Each
// track is resolved through a three-tier resolver (server search,
// filesystem probe, catalog lookup); misses are handed to the transfer
// daemon, hits are mirrored into a server-side playlist and leftovers are
// recorded in the wishlist for later retries.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Sentinel states a sync can end in. Result errors are strings so they
// survive display and storage; Result.Err folds them back into these for
// callers that branch.
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrSyncCancelled  = errors.New("sync cancelled")
)

// Playlist is one remote playlist descriptor, as carried by playlist
// export files.
type Playlist struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Tracks []PlaylistTrack `json:"tracks"`
}

// PlaylistTrack is one track of a remote playlist.
type PlaylistTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      ArtistList        `json:"artists"`
	Album        string            `json:"album"`
	DurationMS   int               `json:"duration_ms"`
	Popularity   int               `json:"popularity,omitempty"`
	ExternalURLs map[string]string `json:"external_urls,omitempty"`
}

// PrimaryArtist returns the first named artist, or "" for artistless
// entries (podcasts, local files).
func (t PlaylistTrack) PrimaryArtist() string {
	for _, a := range t.Artists {
		if a != "" {
			return a
		}
	}
	return ""
}

// ArtistList accepts the two shapes playlist exports use for artists:
// plain strings and {"name": ...} objects, mixed freely.
type ArtistList []string

func (a *ArtistList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	names := make([]string, 0, len(raw))
	for _, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			names = append(names, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(entry, &obj); err != nil {
			return fmt.Errorf("artist entry: %w", err)
		}
		names = append(names, obj.Name)
	}
	*a = names
	return nil
}

// ParsePlaylists reads playlist descriptors from JSON. It accepts a single
// playlist object, a bare array, or a {"playlists": [...]} wrapper.
func ParsePlaylists(r io.Reader) ([]Playlist, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read playlist input: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty playlist input")
	}

	if strings.HasPrefix(trimmed, "[") {
		var playlists []Playlist
		if err := json.Unmarshal(data, &playlists); err != nil {
			return nil, fmt.Errorf("parse playlist array: %w", err)
		}
		return playlists, nil
	}

	var wrapper struct {
		Playlists []Playlist `json:"playlists"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Playlists) > 0 {
		return wrapper.Playlists, nil
	}

	var single Playlist
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	if single.Name == "" && len(single.Tracks) == 0 {
		return nil, fmt.Errorf("parse playlist: no name and no tracks")
	}
	return []Playlist{single}, nil
}

// Result reports the outcome of one playlist sync.
type Result struct {
	PlaylistName  string
	TotalTracks   int
	MatchedTracks int
	SyncedTracks  int
	Downloaded    int
	FailedTracks  int
	WishlistAdded int
	SyncTime      time.Time
	Errors        []string
}

// SuccessRate is the share of requested tracks that made it into the
// mirrored playlist, in percent.
func (r Result) SuccessRate() float64 {
	if r.TotalTracks == 0 {
		return 0
	}
	return float64(r.SyncedTracks) / float64(r.TotalTracks) * 100
}

// Cancelled reports whether the sync ended by cancellation.
func (r Result) Cancelled() bool {
	for _, msg := range r.Errors {
		if msg == msgCancelled {
			return true
		}
	}
	return false
}

// Err folds the result's error strings back into one error: nil for a
// clean sync, ErrSyncCancelled / ErrSyncInProgress for the two canonical
// states, otherwise an error joining the messages.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	if r.Cancelled() {
		return ErrSyncCancelled
	}
	for _, msg := range r.Errors {
		if strings.HasPrefix(msg, msgInProgressPrefix) {
			return ErrSyncInProgress
		}
	}
	return errors.New(strings.Join(r.Errors, "; "))
}

// Progress is one progress tick of a running sync.
type Progress struct {
	Step         string
	CurrentTrack string
	Pct          int
	StepNumber   int
	TotalSteps   int
	Total        int
	Matched      int
	Failed       int
}

// ProgressFunc receives progress ticks keyed by playlist name. Multiple
// syncs can run in parallel; implementations must be safe for concurrent
// calls.
type ProgressFunc func(playlist string, p Progress)
