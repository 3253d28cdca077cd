package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"
	_ "time/tzdata" // zone lookups on hosts without a system tz database

	"github.com/banshee-data/propagation.report/internal/api"
	"github.com/banshee-data/propagation.report/internal/artifact"
	"github.com/banshee-data/propagation.report/internal/config"
	"github.com/banshee-data/propagation.report/internal/db"
	"github.com/banshee-data/propagation.report/internal/feeds"
	"github.com/banshee-data/propagation.report/internal/fsutil"
	"github.com/banshee-data/propagation.report/internal/httputil"
	"github.com/banshee-data/propagation.report/internal/prop"
	"github.com/banshee-data/propagation.report/internal/render"
	"github.com/banshee-data/propagation.report/internal/sched"
	"github.com/banshee-data/propagation.report/internal/timeutil"
	"github.com/banshee-data/propagation.report/internal/version"
	"github.com/banshee-data/propagation.report/internal/wxgrid"
)

var (
	port         = flag.Int("port", 9086, "HTTP listen port")
	dataDir      = flag.String("data-dir", artifact.DefaultRoot, "Directory for generated feed artifacts")
	mapsDir      = flag.String("maps-dir", "data/maps", "Directory holding the background map frames")
	dbPath       = flag.String("db-path", "hamclock_state.db", "Path to the SQLite state database")
	tuningPath   = flag.String("tuning", "", "Optional tuning config JSON; built-in defaults apply when omitted")
	upstreamHost = flag.String("upstream-host", "", "Upstream clearinghouse host for ORIGINAL, SHADOW and VERIFY proxy modes")
)

// Main
func main() {
	flag.Parse()

	// Subcommands run and exit before any of the serving machinery starts.
	if flag.NArg() > 0 {
		switch command := flag.Arg(0); command {
		case "migrate":
			db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		case "mapgen":
			if err := render.SynthesizeBackground(fsutil.OSFileSystem{}, *mapsDir); err != nil {
				log.Fatalf("Failed to write placeholder maps: %v", err)
			}
			log.Printf("Wrote placeholder map frames to %s", *mapsDir)
		default:
			log.Fatalf("unknown command %q (expected migrate or mapgen)", command)
		}
		return
	}

	log.Printf("hamclockd %s", version.String())

	proxyMode, err := api.ParseProxyMode(os.Getenv("PROXY_MODE"))
	if err != nil {
		log.Fatalf("Invalid PROXY_MODE: %v", err)
	}
	if proxyMode != api.ProxyExclusive && *upstreamHost == "" {
		log.Fatalf("PROXY_MODE %s requires --upstream-host", proxyMode)
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Bring the schema up to date before anything touches the tables.
	migrations, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}
	if err := database.MigrateUp(migrations); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	fsys := fsutil.OSFileSystem{}
	bg, err := render.LoadBackground(fsys, *mapsDir)
	if err != nil {
		log.Fatalf("Failed to load background maps from %s: %v (run 'hamclockd mapgen' for placeholders)", *mapsDir, err)
	}
	engine := prop.NewEngine(bg, tuning)

	store := artifact.NewStore(fsys, *dataDir)
	client := httputil.NewStandardClient(nil)
	clock := timeutil.RealClock{}

	fetchers := feeds.All(feeds.NewClient(client, store, clock))
	fetchers = append(fetchers, wxgrid.NewWorker(client, database, store, clock))
	scheduler := sched.New(fetchers, database, clock, tuning.GetRefreshInterval())

	apiServer := api.NewServer(api.ServerConfig{
		Engine:       engine,
		Store:        store,
		DB:           database,
		HTTP:         client,
		Clock:        clock,
		Tuning:       tuning,
		ProxyMode:    proxyMode,
		UpstreamHost: *upstreamHost,
	})

	// Create a wait group for the HTTP server and feed scheduler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Populate the artifact tree before accepting clients, so the first
	// desktop poll never races an empty data directory.
	scheduler.RunTick(ctx)

	// refresh the upstream feeds on the tuning interval
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.RunLoop(ctx)
		log.Print("scheduler routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", *port),
			Handler: apiServer.Handler(),
		}
		// Desktop clients speak HTTP/1.0 and expect one response per
		// connection.
		server.SetKeepAlivesEnabled(false)

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on :%d (proxy mode %s)", *port, proxyMode)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
