// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Catalog operations
	OpCatalogOpen    Op = "open catalog database"
	OpCatalogMigrate Op = "migrate catalog schema"
	OpCatalogClear   Op = "clear catalog data"
	OpCatalogStats   Op = "load catalog statistics"

	// Media server operations
	OpServerConnect  Op = "connect to media server"
	OpLibraryScan    Op = "scan library"
	OpLibrarySelect  Op = "select music library"
	OpLibraryStats   Op = "load library statistics"
	OpArtistFetch    Op = "fetch artist"
	OpAlbumFetch     Op = "fetch album"
	OpTrackFetch     Op = "fetch track"
	OpPosterUpload   Op = "upload poster"
	OpMetadataUpdate Op = "update metadata"

	// Sync operations
	OpSyncPlaylist Op = "sync playlist"
	OpSyncCancel   Op = "cancel sync"
	OpSyncPreview  Op = "preview sync"
	OpTrackResolve Op = "resolve track"

	// Search operations
	OpTrackSearch  Op = "search for track"
	OpAlbumSearch  Op = "search for album"
	OpDaemonSearch Op = "query transfer daemon"
	OpDaemonStatus Op = "check transfer daemon"

	// Download operations
	OpDownloadQueue   Op = "queue download"
	OpDownloadCancel  Op = "cancel download"
	OpDownloadClear   Op = "clear completed downloads"
	OpDownloadRefresh Op = "refresh downloads"

	// Playlist operations
	OpPlaylistCreate Op = "create playlist"
	OpPlaylistUpdate Op = "update playlist"
	OpPlaylistDelete Op = "delete playlist"
	OpPlaylistCopy   Op = "copy playlist"
	OpPlaylistLoad   Op = "load playlist"

	// Wishlist operations
	OpWishlistAdd     Op = "add track to wishlist"
	OpWishlistRemove  Op = "remove track from wishlist"
	OpWishlistProcess Op = "process wishlist"
	OpWishlistClear   Op = "clear wishlist"

	// Watchlist operations
	OpWatchlistAdd    Op = "add artist to watchlist"
	OpWatchlistRemove Op = "remove artist from watchlist"
	OpWatchlistLoad   Op = "load watchlist"

	// Quality profile operations
	OpProfileLoad Op = "load quality profile"
	OpProfileSave Op = "save quality profile"

	// Discovery operations
	OpDiscoveryFetch   Op = "fetch similar artists"
	OpDiscoveryRefresh Op = "refresh discovery pool"

	// Initialization
	OpInitialize Op = "initialize application"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
