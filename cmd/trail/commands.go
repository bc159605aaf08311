package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/trail.report/internal/api"
	"github.com/banshee-data/trail.report/internal/db"
	"github.com/banshee-data/trail.report/internal/serialmux"
	"github.com/banshee-data/trail.report/internal/tracking"
	"github.com/paulmach/orb/geojson"
)

var errUsage = errors.New("invalid arguments")

// runCommand dispatches a subcommand. Client commands talk to the server at
// -api; migrate and import-routes open the database directly.
func runCommand(command string, args []string, out io.Writer) error {
	switch command {
	case "migrate":
		return db.RunMigrateCommand(args, *dbPath, os.Stdin, out)
	case "import-routes":
		if len(args) != 1 {
			return fmt.Errorf("%w: import-routes <file.geojson>", errUsage)
		}
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		n, err := importRoutesFile(context.Background(), database, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d routes\n", n)
		return nil
	case "ports":
		ports, err := serialmux.ListPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	case "help":
		printUsage()
		return nil
	}
	return runClientCommand(api.NewClient(*apiURL, nil), command, args, out)
}

func runClientCommand(c *api.Client, command string, args []string, out io.Writer) error {
	switch command {
	case "status":
		st, err := c.Status()
		if err != nil {
			return err
		}
		printStatus(out, st)
		return nil
	case "start":
		var routeID *int
		if len(args) > 0 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: route id %q", errUsage, args[0])
			}
			routeID = &id
		}
		st, err := c.Start(routeID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "tracking session %s\n", st.SessionID)
		return nil
	case "stop":
		var name, notes string
		if len(args) > 0 {
			name = args[0]
		}
		if len(args) > 1 {
			notes = args[1]
		}
		st, err := c.Stop(name, notes)
		if err != nil {
			return err
		}
		printSession(out, st.Session)
		return nil
	case "pause", "resume", "discard":
		var (
			st  tracking.State
			err error
		)
		switch command {
		case "pause":
			st, err = c.Pause()
		case "resume":
			st, err = c.Resume()
		default:
			st, err = c.Discard()
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", describeState(st))
		return nil
	case "sessions":
		var routeID *int
		if len(args) > 0 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: route id %q", errUsage, args[0])
			}
			routeID = &id
		}
		items, err := c.Sessions(routeID)
		if err != nil {
			return err
		}
		printSessions(out, items)
		return nil
	case "export":
		if len(args) < 1 {
			return fmt.Errorf("%w: export <session-id> [format]", errUsage)
		}
		format := ""
		if len(args) > 1 {
			format = args[1]
		}
		doc, err := c.Export(args[0], format)
		if err != nil {
			return err
		}
		_, err = out.Write(doc)
		return err
	}
	return fmt.Errorf("unknown command %q", command)
}

func importRoutesFile(ctx context.Context, database *db.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return database.ImportRoutes(ctx, fc)
}

func describeState(st tracking.State) string {
	switch {
	case st.Status == tracking.StatusTracking && st.Paused:
		return fmt.Sprintf("paused session %s", st.SessionID)
	case st.Status == tracking.StatusTracking:
		return fmt.Sprintf("tracking session %s", st.SessionID)
	case st.Status == tracking.StatusError:
		return fmt.Sprintf("error: %s", st.Message)
	case st.Status == tracking.StatusCompleted:
		return fmt.Sprintf("completed session %s", st.SessionID)
	}
	return string(st.Status)
}

func printStatus(out io.Writer, st api.TrackingStatus) {
	fmt.Fprintln(out, describeState(st.State))
	if !st.State.IsTracking() {
		return
	}
	fmt.Fprintf(out, "elapsed: %s\n", (time.Duration(st.ElapsedSeconds) * time.Second).String())
	if fix := st.State.CurrentFix; fix != nil {
		fmt.Fprintf(out, "position: %.6f, %.6f\n", fix.Latitude, fix.Longitude)
	}
	if len(st.FilterRejections) > 0 {
		b, _ := json.Marshal(st.FilterRejections)
		fmt.Fprintf(out, "rejected fixes: %s\n", b)
	}
}

func printSession(out io.Writer, s *tracking.Session) {
	if s == nil {
		return
	}
	fmt.Fprintf(out, "saved session %s\n", s.ID)
	fmt.Fprintf(out, "distance: %.2f km in %s, average %.1f km/h, max %.1f km/h\n",
		s.DistanceMeters/1000, time.Duration(s.DurationSeconds)*time.Second,
		s.AverageSpeedKmh, s.MaxSpeedKmh)
}

func printSessions(out io.Writer, items []api.SessionListItem) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tPOINTS\tKM\tDONE")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%t\n", s.ID, s.StartTime.Local().Format("2006-01-02 15:04"), s.PointCount, s.DistanceMeters/1000, s.IsCompleted)
	}
	tw.Flush()
}
