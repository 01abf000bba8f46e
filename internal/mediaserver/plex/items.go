package plex

import (
	"net/url"
	"time"

	"github.com/llehouerou/attune/internal/mediaserver"
)

// Wire types for the subset of the Plex API this client touches. Every
// response nests under a MediaContainer; durations arrive in milliseconds
// and addedAt as unix seconds.

// Item type discriminators used by the /all listing endpoint.
const (
	typeArtist = "8"
	typeAlbum  = "9"
	typeTrack  = "10"
)

type containerResponse struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

type mediaContainer struct {
	Size              int           `json:"size"`
	TotalSize         int           `json:"totalSize"`
	MachineIdentifier string        `json:"machineIdentifier"`
	Version           string        `json:"version"`
	Directory         []pxDirectory `json:"Directory"`
	Metadata          []pxMetadata  `json:"Metadata"`
}

// pxDirectory is a library section entry.
type pxDirectory struct {
	Key        string `json:"key"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Refreshing bool   `json:"refreshing"`
}

// pxMetadata is an artist, album, track or playlist item; which fields are
// filled depends on the item type.
type pxMetadata struct {
	RatingKey            string    `json:"ratingKey"`
	Key                  string    `json:"key"`
	Type                 string    `json:"type"`
	Title                string    `json:"title"`
	Summary              string    `json:"summary"`
	Thumb                string    `json:"thumb"`
	Index                int       `json:"index"`
	Year                 int       `json:"year"`
	Duration             int       `json:"duration"`
	AddedAt              int64     `json:"addedAt"`
	UpdatedAt            int64     `json:"updatedAt"`
	LeafCount            int       `json:"leafCount"`
	Smart                bool      `json:"smart"`
	PlaylistType         string    `json:"playlistType"`
	ParentRatingKey      string    `json:"parentRatingKey"`
	ParentTitle          string    `json:"parentTitle"`
	ParentYear           int       `json:"parentYear"`
	GrandparentRatingKey string    `json:"grandparentRatingKey"`
	GrandparentTitle     string    `json:"grandparentTitle"`
	Genre                []pxTag   `json:"Genre"`
	Media                []pxMedia `json:"Media"`
}

type pxTag struct {
	Tag string `json:"tag"`
}

type pxMedia struct {
	Bitrate    int      `json:"bitrate"`
	AudioCodec string   `json:"audioCodec"`
	Part       []pxPart `json:"Part"`
}

type pxPart struct {
	File string `json:"file"`
	Size int64  `json:"size"`
}

func (c *Client) toArtist(it pxMetadata) mediaserver.Artist {
	return mediaserver.Artist{
		ID:       it.RatingKey,
		Name:     it.Title,
		ThumbURL: c.imageURL(it.Thumb),
		Genres:   tagNames(it.Genre),
		Summary:  it.Summary,
		AddedAt:  unixTime(it.AddedAt),
	}
}

func (c *Client) toAlbum(it pxMetadata) mediaserver.Album {
	return mediaserver.Album{
		ID:         it.RatingKey,
		ArtistID:   it.ParentRatingKey,
		ArtistName: it.ParentTitle,
		Title:      it.Title,
		Year:       it.Year,
		ThumbURL:   c.imageURL(it.Thumb),
		Genres:     tagNames(it.Genre),
		TrackCount: it.LeafCount,
		DurationMS: it.Duration,
		AddedAt:    unixTime(it.AddedAt),
	}
}

func (c *Client) toTrack(it pxMetadata) mediaserver.Track {
	track := mediaserver.Track{
		ID:          it.RatingKey,
		AlbumID:     it.ParentRatingKey,
		ArtistID:    it.GrandparentRatingKey,
		ArtistName:  it.GrandparentTitle,
		AlbumTitle:  it.ParentTitle,
		Title:       it.Title,
		TrackNumber: it.Index,
		DurationMS:  it.Duration,
		Year:        it.ParentYear,
	}
	if len(it.Media) > 0 {
		track.Bitrate = it.Media[0].Bitrate
		if len(it.Media[0].Part) > 0 {
			track.FilePath = it.Media[0].Part[0].File
		}
	}
	return track
}

// imageURL turns a thumb path into a fetchable URL. Plex image routes
// require the token, so it travels as a query parameter.
func (c *Client) imageURL(thumb string) string {
	if thumb == "" {
		return ""
	}
	return c.baseURL + thumb + "?X-Plex-Token=" + url.QueryEscape(c.token)
}

func tagNames(tags []pxTag) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Tag != "" {
			names = append(names, t.Tag)
		}
	}
	return names
}

func unixTime(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
