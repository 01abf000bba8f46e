// Command definitions. Actions live with their domain files.
package main

import "github.com/urfave/cli/v3"

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Sync playlist export files against the media server",
		ArgsUsage: "<playlists.json> (or - for stdin)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "download",
				Usage: "Queue unmatched tracks on the transfer daemon",
			},
			&cli.BoolFlag{
				Name:  "no-download",
				Usage: "Skip downloading, only mirror what already matches",
			},
			&cli.BoolFlag{
				Name:  "preview",
				Usage: "Resolve tracks and report without changing anything",
			},
			&cli.BoolFlag{
				Name:  "compare",
				Usage: "Size the playlists up against the library without resolving",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Backend override: jellyfin or plex",
			},
		},
		Action: r.SyncRun,
	}
}

func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Populate the catalog from the media server library",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Rebuild from scratch instead of picking up recent additions",
			},
			&cli.BoolFlag{
				Name:  "trigger",
				Usage: "Ask the media server to scan its library first",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Backend override: jellyfin or plex",
			},
		},
		Action: r.Scan,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show catalog, media server and transfer daemon state",
		Action: r.Status,
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the peer network through the transfer daemon",
		ArgsUsage: "<query>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum results to show",
				Value: 20,
			},
		},
		Action: r.Search,
	}
}

func downloadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "downloads",
		Usage: "List transfers known to the daemon",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clear-completed",
				Usage: "Remove finished transfers first",
			},
		},
		Action: r.Downloads,
	}
}

func wishlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "wishlist",
		Usage: "Tracks that could not be delivered yet",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show pending entries, oldest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum entries to show (0 = all)",
					},
				},
				Action: r.WishlistList,
			},
			{
				Name:  "process",
				Usage: "Retry pending entries against the transfer daemon",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum entries to retry (0 = all)",
					},
				},
				Action: r.WishlistProcess,
			},
			{
				Name:   "clear",
				Usage:  "Drop every entry",
				Action: r.WishlistClear,
			},
			{
				Name:   "dedupe",
				Usage:  "Collapse duplicate entries, keeping the oldest",
				Action: r.WishlistDedupe,
			},
		},
	}
}

func watchlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watchlist",
		Usage: "Artists monitored for new releases",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Start monitoring an artist",
				ArgsUsage: "<artist>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "artist"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Server artist id, skipping catalog lookup",
					},
				},
				Action: r.WatchlistAdd,
			},
			{
				Name:      "rm",
				Usage:     "Stop monitoring an artist",
				ArgsUsage: "<artist>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "artist"},
				},
				Action: r.WatchlistRemove,
			},
			{
				Name:   "list",
				Usage:  "Show monitored artists",
				Action: r.WatchlistList,
			},
			{
				Name:  "releases",
				Usage: "Show releases spotted for monitored artists",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum releases to show",
						Value: 20,
					},
				},
				Action: r.WatchlistReleases,
			},
		},
	}
}

func qualityCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "quality",
		Usage: "Download quality profile",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the active profile",
				Action: r.QualityShow,
			},
			{
				Name:      "use",
				Usage:     "Activate a preset",
				ArgsUsage: "<audiophile|balanced|space_saver>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "preset"},
				},
				Action: r.QualityUse,
			},
		},
	}
}

func discoverCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "Similar artists and pooled recommendations (Last.fm)",
		ArgsUsage: "[artist]",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "artist"},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum entries to show",
				Value: 15,
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Refresh similarity data for every watchlist artist",
			},
			&cli.BoolFlag{
				Name:  "tracks",
				Usage: "Show the artist's top tracks instead of similar artists",
			},
		},
		Action: r.Discover,
	}
}
