package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/llehouerou/attune/internal/mediaserver"
)

// playlistBatchSize bounds one append request; the ids travel in the query
// string and very long id lists overflow it.
const playlistBatchSize = 100

// Playlists lists the audio playlists visible to the connected user.
func (c *Client) Playlists(ctx context.Context) ([]mediaserver.Playlist, error) {
	uid, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("IncludeItemTypes", "Playlist")
	params.Set("Recursive", "true")
	params.Set("SortBy", "SortName")
	params.Set("SortOrder", "Ascending")

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}

	playlists := make([]mediaserver.Playlist, 0, len(page.Items))
	for _, it := range page.Items {
		playlists = append(playlists, mediaserver.Playlist{
			ID:         it.ID,
			Name:       it.Name,
			DurationMS: int(it.RunTimeTicks / ticksPerMillisecond),
			TrackCount: it.ChildCount,
		})
	}
	return playlists, nil
}

// PlaylistByName finds a playlist by case-insensitive name.
func (c *Client) PlaylistByName(ctx context.Context, name string) (*mediaserver.Playlist, error) {
	playlists, err := c.Playlists(ctx)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		if strings.EqualFold(playlists[i].Name, name) {
			return &playlists[i], nil
		}
	}
	return nil, mediaserver.ErrNotFound
}

// PlaylistTracks returns the playlist's tracks.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]mediaserver.Track, error) {
	uid, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ParentId", playlistID)
	params.Set("Fields", "AlbumId,ArtistItems,Path")
	params.Set("SortBy", "SortName")
	params.Set("SortOrder", "Ascending")

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, fmt.Errorf("list playlist tracks: %w", err)
	}

	tracks := make([]mediaserver.Track, 0, len(page.Items))
	for _, it := range page.Items {
		tracks = append(tracks, c.toTrack(it))
	}
	return tracks, nil
}

// CreatePlaylist creates an audio playlist and appends the given tracks in
// batches. The container is created empty first; large id lists in the
// create request itself get dropped silently by the server. Creation
// succeeding counts as success even if some append batches fail.
func (c *Client) CreatePlaylist(ctx context.Context, name string, trackIDs []string) error {
	uid, _, err := c.session(ctx)
	if err != nil {
		return err
	}

	valid := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		if c.ValidTrackID(id) {
			valid = append(valid, strings.TrimSpace(id))
		}
	}
	if dropped := len(trackIDs) - len(valid); dropped > 0 {
		c.log.Warn("dropping malformed track ids", "playlist", name, "dropped", dropped)
	}
	if len(valid) == 0 {
		return fmt.Errorf("create playlist %q: no valid track ids", name)
	}

	var created createPlaylistResponse
	body := createPlaylistRequest{Name: name, UserID: uid, MediaType: "Audio"}
	if err := c.post(ctx, "/Playlists", nil, body, &created); err != nil {
		return fmt.Errorf("create playlist %q: %w", name, err)
	}
	if created.ID == "" {
		return fmt.Errorf("create playlist %q: server returned no id", name)
	}

	var failed int
	for start := 0; start < len(valid); start += playlistBatchSize {
		end := start + playlistBatchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		params := url.Values{}
		params.Set("Ids", strings.Join(batch, ","))
		params.Set("UserId", uid)
		if err := c.post(ctx, "/Playlists/"+url.PathEscape(created.ID)+"/Items", params, nil, nil); err != nil {
			failed += len(batch)
			c.log.Warn("playlist batch append failed", "playlist", name, "batch_start", start, "err", err)
		}
	}
	if failed > 0 {
		c.log.Warn("playlist created with missing tracks", "playlist", name, "missing", failed, "total", len(valid))
	} else {
		c.log.Info("playlist created", "playlist", name, "tracks", len(valid))
	}
	return nil
}

// UpdatePlaylist replaces the playlist's contents by deleting and
// recreating it. When backups are enabled a "<name> Backup" copy shields
// the tracks: it is removed after a successful rebuild and kept when the
// rebuild fails.
func (c *Client) UpdatePlaylist(ctx context.Context, name string, trackIDs []string) error {
	existing, err := c.PlaylistByName(ctx, name)
	if err != nil && !errors.Is(err, mediaserver.ErrNotFound) {
		return err
	}

	backupName := ""
	if existing != nil && c.backup {
		backupName = name + " Backup"
		if err := c.CopyPlaylist(ctx, name, backupName); err != nil {
			c.log.Warn("backup copy failed, updating without one", "playlist", name, "err", err)
			backupName = ""
		}
	}

	if existing != nil {
		if err := c.deletePlaylist(ctx, existing.ID); err != nil {
			c.log.Warn("could not delete old playlist, recreating anyway", "playlist", name, "err", err)
		}
	}

	if err := c.CreatePlaylist(ctx, name, trackIDs); err != nil {
		if backupName != "" {
			c.log.Warn("playlist rebuild failed, backup kept", "playlist", name, "backup", backupName)
		}
		return err
	}

	if backupName != "" {
		if backup, err := c.PlaylistByName(ctx, backupName); err == nil {
			if err := c.deletePlaylist(ctx, backup.ID); err != nil {
				c.log.Warn("could not remove backup playlist", "backup", backupName, "err", err)
			}
		}
	}
	return nil
}

// CopyPlaylist duplicates a playlist under a new name, replacing any
// playlist already holding that name.
func (c *Client) CopyPlaylist(ctx context.Context, srcName, dstName string) error {
	src, err := c.PlaylistByName(ctx, srcName)
	if err != nil {
		return fmt.Errorf("copy playlist: source %q: %w", srcName, err)
	}

	tracks, err := c.PlaylistTracks(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("copy playlist %q: %w", srcName, err)
	}
	if len(tracks) == 0 {
		return fmt.Errorf("copy playlist %q: no tracks to copy", srcName)
	}

	if existing, err := c.PlaylistByName(ctx, dstName); err == nil {
		if err := c.deletePlaylist(ctx, existing.ID); err != nil {
			c.log.Warn("could not delete playlist before copy", "playlist", dstName, "err", err)
		}
	}

	ids := make([]string, 0, len(tracks))
	for _, track := range tracks {
		ids = append(ids, track.ID)
	}
	return c.CreatePlaylist(ctx, dstName, ids)
}

func (c *Client) deletePlaylist(ctx context.Context, playlistID string) error {
	if err := c.delete(ctx, "/Items/"+url.PathEscape(playlistID)); err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	return nil
}
