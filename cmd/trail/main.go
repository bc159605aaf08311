package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trail.report/internal/api"
	"github.com/banshee-data/trail.report/internal/config"
	"github.com/banshee-data/trail.report/internal/db"
	"github.com/banshee-data/trail.report/internal/export"
	"github.com/banshee-data/trail.report/internal/fsutil"
	"github.com/banshee-data/trail.report/internal/location"
	"github.com/banshee-data/trail.report/internal/serialmux"
	"github.com/banshee-data/trail.report/internal/statestore"
	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/banshee-data/trail.report/internal/units"
	"github.com/banshee-data/trail.report/internal/version"
)

const (
	sourceSerial   = "serial"
	sourceGPX      = "gpx"
	sourceDisabled = "disabled"
	sourcePush     = "push"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db-path", "trail.db", "path to the sqlite session database")
	statePath   = flag.String("state-path", "tracking.state", "path to the persisted tracking state file")
	configPath  = flag.String("config", "", "tracking config JSON file (defaults to built-in settings)")
	sourceKind  = flag.String("source", sourceSerial, "location source: serial, gpx, push or disabled")
	serialPort  = flag.String("serial-port", "/dev/ttyUSB0", "serial port of the NMEA GPS receiver")
	baudRate    = flag.Int("baud", serialmux.DefaultBaudRate, "serial baud rate")
	framing     = flag.String("serial-framing", serialmux.DefaultFraming, "serial data bits, parity and stop bits")
	replayFile  = flag.String("replay-file", "", "GPX file to replay when -source=gpx")
	replaySpeed = flag.Float64("replay-speed", 1, "GPX replay speed multiplier")
	replayKeep  = flag.Bool("replay-keep-timestamps", false, "deliver recorded GPX timestamps instead of the current time (implies replay mode)")
	routesFile  = flag.String("routes", "", "GeoJSON file of reference routes to import at startup")
	exportDir   = flag.String("export-dir", "", "directory to archive completed sessions into (disabled when empty)")
	exportFmts  = flag.String("export-formats", "gpx", "comma-separated archive formats: gpx, kml, geojson")
	speedUnits  = flag.String("units", units.KMPH, "speed units for summaries ("+units.GetValidUnitsString()+")")
	apiURL      = flag.String("api", "http://localhost:8080", "server URL used by the client subcommands")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("trail %s\n", version.String())
		return
	}

	if flag.NArg() > 0 {
		if err := runCommand(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
			os.Exit(1)
		}
		return
	}

	if err := validateFlags(); err != nil {
		log.Fatal(err)
	}

	cfg := config.DefaultTrackingConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTrackingConfig(*configPath); err != nil {
			log.Fatalf("failed to load tracking config: %v", err)
		}
	}
	if *replayKeep {
		replay := true
		cfg.ReplayMode = &replay
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if *routesFile != "" {
		n, err := importRoutesFile(context.Background(), database, *routesFile)
		if err != nil {
			log.Fatalf("failed to import routes: %v", err)
		}
		log.Printf("imported %d routes from %s", n, *routesFile)
	}

	store, err := statestore.Open(*statePath)
	if err != nil {
		log.Fatalf("failed to open tracking state: %v", err)
	}
	defer store.Close()

	// Create a wait group for the HTTP server, serial monitor and location
	// source routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	source, mux, closeSource := buildSource(ctx, &wg, clock)
	defer closeSource()

	engine := tracking.NewEngine(tracking.EngineConfig{
		Source:     source,
		Repository: database,
		State:      store,
		Background: tracking.NewKeepAlive(clock, cfg.GetKeepaliveInterval()),
		Clock:      clock,
		Tracking:   cfg,
	})

	if st, err := engine.ResumeIfActive(ctx); err != nil {
		log.Printf("failed to resume tracking session: %v", err)
	} else if st.IsTracking() {
		log.Printf("resumed tracking session %s", st.SessionID)
	}

	if *exportDir != "" {
		formats, err := parseFormats(*exportFmts)
		if err != nil {
			log.Fatal(err)
		}
		archiver := export.NewArchiver(fsutil.OSFileSystem{}, *exportDir, formats)
		watchID, completed := engine.WatchCompleted()
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiver.Run(ctx, completed)
			engine.UnwatchCompleted(watchID)
			log.Print("archive routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		serveMux := api.NewServer(engine, source, database, cfg, *speedUnits).ServeMux()
		if mux != nil {
			mux.AttachAdminRoutes(serveMux)
		}
		if err := database.AttachAdminRoutes(serveMux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(serveMux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// An active session is left tracking in the persisted state so the next
	// start resumes it.
	if st := engine.State(); st.IsTracking() {
		log.Printf("session %s still active; it will resume on next start", st.SessionID)
	}
	log.Printf("Graceful shutdown complete")
}

func validateFlags() error {
	if *listen == "" {
		return errors.New("listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		return fmt.Errorf("invalid -units %q, must be one of: %s", *speedUnits, units.GetValidUnitsString())
	}
	switch *sourceKind {
	case sourceSerial:
		if *serialPort == "" {
			return errors.New("-serial-port is required with -source=serial")
		}
		opts, err := serialmux.ParseFraming(serialmux.PortOptions{BaudRate: *baudRate}, *framing)
		if err != nil {
			return err
		}
		if _, err := opts.SerialMode(); err != nil {
			return err
		}
	case sourceGPX:
		if *replayFile == "" {
			return errors.New("-replay-file is required with -source=gpx")
		}
	case sourceDisabled, sourcePush:
	default:
		return fmt.Errorf("unknown -source %q", *sourceKind)
	}
	if _, err := parseFormats(*exportFmts); err != nil {
		return err
	}
	return nil
}

func parseFormats(list string) ([]export.Format, error) {
	var formats []export.Format
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := export.ParseFormat(name)
		if err != nil {
			return nil, fmt.Errorf("invalid -export-formats: %w", err)
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// buildSource starts the configured location source. The returned serial mux
// is nil unless the source reads a receiver.
func buildSource(ctx context.Context, wg *sync.WaitGroup, clock timeutil.Clock) (tracking.LocationSource, serialmux.SerialMuxInterface, func()) {
	switch *sourceKind {
	case sourceGPX:
		replay, err := location.LoadGPXReplay(*replayFile, clock, location.ReplayOptions{
			Speed:          *replaySpeed,
			KeepTimestamps: *replayKeep,
		})
		if err != nil {
			log.Fatalf("failed to load GPX replay: %v", err)
		}
		log.Printf("replaying %d points from %s", replay.Len(), *replayFile)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := replay.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("GPX replay stopped: %v", err)
			}
		}()
		return replay, nil, replay.Close
	case sourcePush:
		push := location.NewChannelSource()
		log.Print("accepting fixes on /api/tracking/fix")
		return push, nil, push.Close
	}

	var mux serialmux.SerialMuxInterface
	if *sourceKind == sourceDisabled {
		mux = serialmux.NewDisabledSerialMux()
	} else {
		opts, err := serialmux.ParseFraming(serialmux.PortOptions{BaudRate: *baudRate}, *framing)
		if err != nil {
			log.Fatal(err)
		}
		port, err := serialmux.NewRealSerialMux(*serialPort, opts)
		if err != nil {
			log.Printf("failed to open GPS receiver on %s, location disabled: %v", *serialPort, err)
			mux = serialmux.NewDisabledSerialMux()
		} else {
			mux = port
		}
	}

	source := location.NewNMEASource(mux, clock)

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
			source.MarkFailed(err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("NMEA source stopped: %v", err)
		}
		log.Print("NMEA routine terminated")
	}()

	return source, mux, func() {
		source.Close()
		mux.Close()
	}
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), `trail - GPS trail session tracker

Usage:
  trail [flags]                 run the tracking server
  trail [flags] <command> [args]

Commands:
  migrate <action>              manage the database schema (run "migrate help")
  import-routes <file.geojson>  import reference routes into the database
  ports                         list serial ports a GPS receiver may be attached to
  status                        show the server's tracking state
  start [route-id]              start a tracking session
  stop [name] [notes]           stop and save the active session
  pause | resume | discard      control the active session
  sessions [route-id]           list stored sessions
  export <session-id> [format]  write a completed session (gpx, kml, geojson) to stdout

Flags:
`)
	flag.PrintDefaults()
}
