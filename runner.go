package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/config"
	"github.com/llehouerou/attune/internal/discovery"
	"github.com/llehouerou/attune/internal/mediaserver"
	"github.com/llehouerou/attune/internal/mediaserver/jellyfin"
	"github.com/llehouerou/attune/internal/mediaserver/plex"
	"github.com/llehouerou/attune/internal/slskd"
	"github.com/llehouerou/attune/internal/sync"
	"github.com/llehouerou/attune/internal/wishlist"
)

// Runner holds the dependencies for CLI commands and provides a method
// per command action. The media server and sync engine are built lazily
// so commands that never touch the server stay cheap.
type Runner struct {
	config    *config.Config
	logger    *log.Logger
	catalog   *catalog.Store
	daemon    *slskd.Client
	wishes    *wishlist.Service
	discovery *discovery.Service
	output    io.Writer
	input     io.Reader

	server mediaserver.Server
	engine *sync.Engine
}

// RunnerOpts configures a Runner. Server and Engine are normally left nil
// and built on demand; tests inject fakes through them.
type RunnerOpts struct {
	Config    *config.Config
	Logger    *log.Logger
	Catalog   *catalog.Store
	Daemon    *slskd.Client
	Wishes    *wishlist.Service
	Discovery *discovery.Service
	Output    io.Writer
	Input     io.Reader
	Server    mediaserver.Server
	Engine    *sync.Engine
}

// NewRunner creates a Runner with the provided dependencies.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	return &Runner{
		config:    opts.Config,
		logger:    opts.Logger,
		catalog:   opts.Catalog,
		daemon:    opts.Daemon,
		wishes:    opts.Wishes,
		discovery: opts.Discovery,
		output:    opts.Output,
		input:     opts.Input,
		server:    opts.Server,
		engine:    opts.Engine,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, scanCommand, statusCommand, searchCommand, downloadsCommand,
		wishlistCommand, watchlistCommand, qualityCommand, discoverCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// mediaServer returns a server for the requested backend, caching the
// configured default. An explicit backend always builds fresh.
func (r *Runner) mediaServer(backend string) (mediaserver.Server, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" || backend == r.config.MediaServer.Backend {
		if r.server == nil {
			srv, err := buildServer(r.config, r.config.MediaServer.Backend, r.logger)
			if err != nil {
				return nil, err
			}
			r.server = srv
		}
		return r.server, nil
	}
	return buildServer(r.config, backend, r.logger)
}

// syncEngine returns the engine for the requested backend, caching the
// configured default.
func (r *Runner) syncEngine(backend string) (*sync.Engine, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" || backend == r.config.MediaServer.Backend {
		if r.engine == nil {
			srv, err := r.mediaServer("")
			if err != nil {
				return nil, err
			}
			r.engine = sync.New(r.catalog, srv, r.daemon, r.config, r.logger)
		}
		return r.engine, nil
	}
	srv, err := r.mediaServer(backend)
	if err != nil {
		return nil, err
	}
	return sync.New(r.catalog, srv, r.daemon, r.config, r.logger), nil
}

func buildServer(cfg *config.Config, backend string, logger *log.Logger) (mediaserver.Server, error) {
	switch backend {
	case config.BackendJellyfin:
		return jellyfin.New(jellyfin.Config{
			URL:          cfg.Jellyfin.URL,
			APIKey:       cfg.Jellyfin.APIKey,
			MusicLibrary: cfg.Jellyfin.MusicLibrary,
			CreateBackup: cfg.CreateBackup(),
		}, logger), nil
	case config.BackendPlex:
		return plex.New(plex.Config{
			URL:          cfg.Plex.URL,
			Token:        cfg.Plex.Token,
			MusicLibrary: cfg.Plex.MusicLibrary,
			CreateBackup: cfg.CreateBackup(),
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown media server backend %q (want %q or %q)",
			backend, config.BackendJellyfin, config.BackendPlex)
	}
}

// backendSource maps the configured backend to its catalog source tag.
func (r *Runner) backendSource() catalog.ServerSource {
	if r.config.MediaServer.Backend == config.BackendPlex {
		return catalog.SourcePrimary
	}
	return catalog.SourceSecondary
}

func (r *Runner) requireDaemon() (*slskd.Client, error) {
	if r.daemon == nil {
		return nil, fmt.Errorf("transfer daemon not configured (set soulseek.url and soulseek.api_key)")
	}
	return r.daemon, nil
}

func (r *Runner) searchOptions() slskd.SearchOptions {
	sk := r.config.GetSoulseekConfig()
	return slskd.SearchOptions{
		Timeout: secondsDuration(sk.SearchTimeout),
		Buffer:  secondsDuration(sk.SearchTimeoutBuffer),
	}
}

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(r.output, text); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
