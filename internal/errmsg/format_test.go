//nolint:goconst // test cases intentionally repeat strings for readability
package errmsg

import (
	"errors"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		op       Op
		err      error
		expected string
	}{
		{
			name:     "nil error returns empty string",
			op:       OpSyncPlaylist,
			err:      nil,
			expected: "",
		},
		{
			name:     "formats error with operation",
			op:       OpSyncPlaylist,
			err:      errors.New("server unreachable"),
			expected: "Failed to sync playlist: server unreachable",
		},
		{
			name:     "library scan operation",
			op:       OpLibraryScan,
			err:      errors.New("permission denied"),
			expected: "Failed to scan library: permission denied",
		},
		{
			name:     "download operation",
			op:       OpDownloadQueue,
			err:      errors.New("network error"),
			expected: "Failed to queue download: network error",
		},
		{
			name:     "playlist operation",
			op:       OpPlaylistCreate,
			err:      errors.New("already exists"),
			expected: "Failed to create playlist: already exists",
		},
		{
			name:     "catalog operation",
			op:       OpCatalogOpen,
			err:      errors.New("database is locked"),
			expected: "Failed to open catalog database: database is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.op, tt.err)
			if result != tt.expected {
				t.Errorf("Format(%q, %v) = %q, want %q", tt.op, tt.err, result, tt.expected)
			}
		})
	}
}

func TestFormatWith(t *testing.T) {
	tests := []struct {
		name     string
		op       Op
		context  string
		err      error
		expected string
	}{
		{
			name:     "nil error returns empty string",
			op:       OpTrackSearch,
			context:  "Clair de Lune",
			err:      nil,
			expected: "",
		},
		{
			name:     "formats error with context",
			op:       OpTrackSearch,
			context:  "Clair de Lune",
			err:      errors.New("daemon timeout"),
			expected: "Failed to search for track 'Clair de Lune': daemon timeout",
		},
		{
			name:     "empty context falls back to Format",
			op:       OpTrackSearch,
			context:  "",
			err:      errors.New("daemon timeout"),
			expected: "Failed to search for track: daemon timeout",
		},
		{
			name:     "playlist update with context",
			op:       OpPlaylistUpdate,
			context:  "Discover Weekly",
			err:      errors.New("playlist not found"),
			expected: "Failed to update playlist 'Discover Weekly': playlist not found",
		},
		{
			name:     "wishlist add with context",
			op:       OpWishlistAdd,
			context:  "Midnight City",
			err:      errors.New("missing track id"),
			expected: "Failed to add track to wishlist 'Midnight City': missing track id",
		},
		{
			name:     "watchlist add with artist context",
			op:       OpWatchlistAdd,
			context:  "Sigur Rós",
			err:      errors.New("duplicate entry"),
			expected: "Failed to add artist to watchlist 'Sigur Rós': duplicate entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatWith(tt.op, tt.context, tt.err)
			if result != tt.expected {
				t.Errorf("FormatWith(%q, %q, %v) = %q, want %q", tt.op, tt.context, tt.err, result, tt.expected)
			}
		})
	}
}

func TestOpConstants(t *testing.T) {
	// Verify that Op constants are non-empty and produce valid messages
	ops := []Op{
		OpCatalogOpen, OpCatalogMigrate, OpCatalogClear, OpCatalogStats,
		OpServerConnect, OpLibraryScan, OpLibrarySelect, OpLibraryStats,
		OpArtistFetch, OpAlbumFetch, OpTrackFetch, OpPosterUpload, OpMetadataUpdate,
		OpSyncPlaylist, OpSyncCancel, OpSyncPreview, OpTrackResolve,
		OpTrackSearch, OpAlbumSearch, OpDaemonSearch, OpDaemonStatus,
		OpDownloadQueue, OpDownloadCancel, OpDownloadClear, OpDownloadRefresh,
		OpPlaylistCreate, OpPlaylistUpdate, OpPlaylistDelete, OpPlaylistCopy, OpPlaylistLoad,
		OpWishlistAdd, OpWishlistRemove, OpWishlistProcess, OpWishlistClear,
		OpWatchlistAdd, OpWatchlistRemove, OpWatchlistLoad,
		OpProfileLoad, OpProfileSave,
		OpDiscoveryFetch, OpDiscoveryRefresh,
		OpInitialize,
	}

	testErr := errors.New("test error")

	for _, op := range ops {
		t.Run(string(op), func(t *testing.T) {
			if op == "" {
				t.Error("Op constant should not be empty")
			}

			result := Format(op, testErr)
			if result == "" {
				t.Error("Format should return non-empty string for non-nil error")
			}

			// Verify the format includes the operation
			expected := "Failed to " + string(op) + ": test error"
			if result != expected {
				t.Errorf("Format = %q, want %q", result, expected)
			}
		})
	}
}
