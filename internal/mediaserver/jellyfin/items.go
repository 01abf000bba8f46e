package jellyfin

import (
	"fmt"
	"time"

	"github.com/llehouerou/attune/internal/mediaserver"
)

// Wire types for the subset of the item API this client touches. Jellyfin
// reports durations in ticks (100ns units).

const ticksPerMillisecond = 10_000

type systemInfo struct {
	ID         string `json:"Id"`
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

type jfUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type nameID struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type itemsPage struct {
	Items            []jfItem `json:"Items"`
	TotalRecordCount int      `json:"TotalRecordCount"`
}

type jfItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	Type           string            `json:"Type"`
	CollectionType string            `json:"CollectionType"`
	Overview       string            `json:"Overview"`
	Genres         []string          `json:"Genres"`
	RunTimeTicks   int64             `json:"RunTimeTicks"`
	IndexNumber    int               `json:"IndexNumber"`
	ProductionYear int               `json:"ProductionYear"`
	Path           string            `json:"Path"`
	AlbumID        string            `json:"AlbumId"`
	Album          string            `json:"Album"`
	AlbumArtist    string            `json:"AlbumArtist"`
	ArtistItems    []nameID          `json:"ArtistItems"`
	AlbumArtists   []nameID          `json:"AlbumArtists"`
	ChildCount     int               `json:"ChildCount"`
	DateCreated    string            `json:"DateCreated"`
	ImageTags      map[string]string `json:"ImageTags"`
}

type scheduledTask struct {
	Name  string `json:"Name"`
	State string `json:"State"`
}

type createPlaylistRequest struct {
	Name      string `json:"Name"`
	UserID    string `json:"UserId"`
	MediaType string `json:"MediaType"`
}

type createPlaylistResponse struct {
	ID string `json:"Id"`
}

func (c *Client) toArtist(it jfItem) mediaserver.Artist {
	return mediaserver.Artist{
		ID:       it.ID,
		Name:     it.Name,
		ThumbURL: c.primaryImageURL(it),
		Genres:   it.Genres,
		Summary:  it.Overview,
		AddedAt:  parseDate(it.DateCreated),
	}
}

func (c *Client) toAlbum(it jfItem) mediaserver.Album {
	album := mediaserver.Album{
		ID:         it.ID,
		Title:      it.Name,
		Year:       it.ProductionYear,
		ThumbURL:   c.primaryImageURL(it),
		Genres:     it.Genres,
		TrackCount: it.ChildCount,
		DurationMS: int(it.RunTimeTicks / ticksPerMillisecond),
		AddedAt:    parseDate(it.DateCreated),
	}
	if len(it.AlbumArtists) > 0 {
		album.ArtistID = it.AlbumArtists[0].ID
		album.ArtistName = it.AlbumArtists[0].Name
	} else if it.AlbumArtist != "" {
		album.ArtistName = it.AlbumArtist
	}
	return album
}

func (c *Client) toTrack(it jfItem) mediaserver.Track {
	track := mediaserver.Track{
		ID:          it.ID,
		AlbumID:     it.AlbumID,
		AlbumTitle:  it.Album,
		Title:       it.Name,
		TrackNumber: it.IndexNumber,
		DurationMS:  int(it.RunTimeTicks / ticksPerMillisecond),
		Year:        it.ProductionYear,
		FilePath:    it.Path,
	}
	if len(it.ArtistItems) > 0 {
		track.ArtistID = it.ArtistItems[0].ID
		track.ArtistName = it.ArtistItems[0].Name
	} else if it.AlbumArtist != "" {
		track.ArtistName = it.AlbumArtist
	}
	return track
}

func (c *Client) primaryImageURL(it jfItem) string {
	tag, ok := it.ImageTags["Primary"]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s/Items/%s/Images/Primary?tag=%s", c.baseURL, it.ID, tag)
}

// parseDate handles the server's RFC 3339 timestamps, which carry
// seven-digit fractional seconds. Unparsable values map to the zero time.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
