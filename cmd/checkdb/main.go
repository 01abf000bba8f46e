// Catalog inspection tool: opens the database (running any pending
// migrations), prints per-server statistics and app state, and optionally
// spot-checks the search index against a title/artist pair.
//
//	checkdb [-db path] [title artist]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/config"
)

func main() {
	dbPath := flag.String("db", "", "catalog path (defaults to the configured database)")
	flag.Parse()

	// Keep the catalog's own chatter down; this tool prints its report on
	// stdout.
	log.SetLevel(log.WarnLevel)

	path := *dbPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal("load config", "err", err)
		}
		path = cfg.Database.Path
	}

	store, err := catalog.Open(path, log.Default())
	if err != nil {
		log.Fatal("open catalog", "err", err)
	}

	fmt.Printf("Catalog: %s\n\n", store.Path())

	for _, server := range []catalog.ServerSource{catalog.SourcePrimary, catalog.SourceSecondary} {
		printServer(store, server)
	}

	printState(store)

	if args := flag.Args(); len(args) >= 2 {
		spotCheck(store, args[0], args[1])
	}
}

func printServer(store *catalog.Store, server catalog.ServerSource) {
	stats, err := store.Statistics(server)
	if err != nil {
		log.Fatal("statistics", "server", server, "err", err)
	}
	fmt.Printf("[%s]\n", server)
	fmt.Printf("  artists: %d  albums: %d  tracks: %d\n", stats.Artists, stats.Albums, stats.Tracks)

	completion, err := store.AlbumCompletionStats(server)
	if err != nil {
		log.Fatal("completion stats", "server", server, "err", err)
	}
	if completion.TotalAlbums > 0 {
		fmt.Printf("  complete albums: %d/%d  tracks owned: %d/%d\n",
			completion.CompleteAlbums, completion.TotalAlbums,
			completion.OwnedTracks, completion.ExpectedTracks)
	}
	fmt.Println()
}

func printState(store *catalog.Store) {
	last, err := store.LastFullRefresh()
	if err != nil {
		log.Fatal("last refresh", "err", err)
	}
	if last.IsZero() {
		fmt.Println("Last full refresh: never")
	} else {
		fmt.Printf("Last full refresh: %s (%s)\n", last.Format(time.RFC3339), humanize.Time(last))
	}

	profile, err := store.QualityProfile()
	if err != nil {
		log.Fatal("quality profile", "err", err)
	}
	name := profile.Name
	if name == "" {
		name = "(default)"
	}
	fmt.Printf("Quality profile:   %s\n", name)

	wishes, err := store.WishlistCount()
	if err != nil {
		log.Fatal("wishlist count", "err", err)
	}
	fmt.Printf("Wishlist entries:  %d\n", wishes)
	if wishes > 0 {
		entries, err := store.WishlistTracks(1)
		if err != nil {
			log.Fatal("wishlist entries", "err", err)
		}
		if len(entries) > 0 {
			fmt.Printf("  oldest: %s (added %s, %d retries)\n",
				entries[0].Name, humanize.Time(entries[0].DateAdded), entries[0].RetryCount)
		}
	}

	watched, err := store.WatchlistCount()
	if err != nil {
		log.Fatal("watchlist count", "err", err)
	}
	fmt.Printf("Watchlist artists: %d\n", watched)

	pool, err := store.DiscoveryPoolCount()
	if err != nil {
		log.Fatal("discovery pool", "err", err)
	}
	fmt.Printf("Discovery pool:    %d tracks\n", pool)
}

// spotCheck runs the layered track search so index problems show up as a
// miss on a track the catalog is known to hold.
func spotCheck(store *catalog.Store, title, artist string) {
	fmt.Printf("\nSearching %q by %q...\n", title, artist)
	matches, err := store.SearchTracks(title, artist, 5, "")
	if err != nil {
		log.Fatal("search", "err", err)
	}
	if len(matches) == 0 {
		fmt.Println("  no matches")
		return
	}
	for _, m := range matches {
		fmt.Printf("  %s - %s [%s] (%s)\n", m.ArtistName, m.Title, m.AlbumTitle, m.Server)
	}
}
