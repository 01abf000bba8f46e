// Package slskd drives the slskd transfer daemon: rate-limited polling
// searches, download queueing and status, and search-history upkeep. All
// outbound requests are serialized through a single client-wide lock.
package slskd

import (
	"strings"
	"time"
)

// SearchRequest represents a search known to slskd.
type SearchRequest struct {
	ID            string    `json:"id"`
	SearchText    string    `json:"searchText"`
	Token         int       `json:"token"`
	State         string    `json:"state"` // InProgress, Completed, etc.
	ResponseCount int       `json:"responseCount"`
	StartedAt     time.Time `json:"startedAt"`
}

// SearchResponse represents a user's response to a search.
type SearchResponse struct {
	Username    string `json:"username"`
	FileCount   int    `json:"fileCount"`
	HasFreeSlot bool   `json:"hasFreeUploadSlot"`
	QueueLength int    `json:"queueLength"`
	UploadSpeed int    `json:"uploadSpeed"` // bytes per second
	Files       []File `json:"files"`
}

// File represents a file in search results.
type File struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Code      int    `json:"code"`
	Extension string `json:"extension"`
	BitRate   int    `json:"bitRate"`
	BitDepth  int    `json:"bitDepth"`
	Length    int    `json:"length"` // Duration in seconds
	IsLocked  bool   `json:"isLocked"`
}

// TransferFile is the payload shape the daemon expects when queueing a
// download.
type TransferFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Path     string `json:"path,omitempty"`
}

// DownloadsResponse represents a user's downloads grouped by directory.
type DownloadsResponse struct {
	Username    string              `json:"username"`
	Directories []DownloadDirectory `json:"directories"`
}

// DownloadDirectory represents a directory of downloads.
type DownloadDirectory struct {
	Directory string         `json:"directory"`
	FileCount int            `json:"fileCount"`
	Files     []DownloadFile `json:"files"`
}

// DownloadFile represents an individual file download from the API.
type DownloadFile struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Filename         string `json:"filename"`
	Size             int64  `json:"size"`
	State            string `json:"state"` // "Completed, Succeeded", "Queued, Remotely", etc.
	BytesTransferred int64  `json:"bytesTransferred"`
}

// DownloadStatus is a flattened download for internal use.
type DownloadStatus struct {
	ID               string
	Username         string
	Filename         string
	State            string
	Size             int64
	BytesTransferred int64
}

// Quality identifies the audio format of a search result file.
type Quality string

const (
	QualityFLAC    Quality = "flac"
	QualityMP3     Quality = "mp3"
	QualityOGG     Quality = "ogg"
	QualityAAC     Quality = "aac"
	QualityWMA     Quality = "wma"
	QualityUnknown Quality = "unknown"
)

// TrackResult is a single downloadable file offered by a peer, with
// best-effort metadata parsed from its filename.
type TrackResult struct {
	Username    string
	Filename    string // full remote path
	Size        int64
	Bitrate     int
	DurationMS  int
	Quality     Quality
	FreeSlot    bool
	UploadSpeed int
	QueueLength int

	Artist      string
	Title       string
	Album       string
	TrackNumber int

	QualityScore float64
}

// AlbumResult groups the audio files one peer shares from one directory.
// It exists only when the directory yielded at least two tracks.
type AlbumResult struct {
	Username    string
	Directory   string
	Title       string
	Artist      string
	TrackCount  int
	TotalSize   int64
	Tracks      []TrackResult // sorted by track number
	Dominant    Quality
	Year        int
	FreeSlot    bool
	UploadSpeed int
	QueueLength int

	QualityScore float64
}

// SearchProgress is delivered after each poll tick that yielded new
// responses, with cumulative counts.
type SearchProgress struct {
	Tracks    int
	Albums    int
	Responses int
}

// ProgressFunc receives streaming search progress.
type ProgressFunc func(SearchProgress)

// SearchState represents the state of a search.
type SearchState string

const (
	SearchStateNone       SearchState = "None"
	SearchStateRequested  SearchState = "Requested"
	SearchStateInProgress SearchState = "InProgress"
	SearchStateCompleted  SearchState = "Completed"
	SearchStateTimedOut   SearchState = "TimedOut"
	SearchStateCancelled  SearchState = "Cancelled"
	SearchStateErrored    SearchState = "Errored"
)

// IsComplete returns true if the search is in a terminal state.
// States can be compound (e.g., "Completed, ResponseLimitReached").
func (s SearchState) IsComplete() bool {
	state := string(s)
	return strings.Contains(state, "Completed") ||
		strings.Contains(state, "TimedOut") ||
		strings.Contains(state, "Cancelled") ||
		strings.Contains(state, "Errored")
}

// DownloadComplete reports whether a transfer state string is terminal
// and successful.
func DownloadComplete(state string) bool {
	return strings.Contains(state, "Completed") && strings.Contains(state, "Succeeded")
}

// DownloadFailed reports whether a transfer state string is terminal and
// unsuccessful.
func DownloadFailed(state string) bool {
	return strings.Contains(state, "Completed") &&
		(strings.Contains(state, "Cancelled") ||
			strings.Contains(state, "Errored") ||
			strings.Contains(state, "Rejected") ||
			strings.Contains(state, "TimedOut"))
}
