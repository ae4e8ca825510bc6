package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/app"
	"github.com/tatankam/eventmap/internal/config"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/spatial"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "eventctl",
		Usage: "Ingest events and query them along a route",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"EVENTMAP_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Load a JSON events file into the store and the index",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the events JSON file",
						Required: true,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Find events along the route between two addresses",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "origin", Usage: "Origin address", Required: true},
					&cli.StringFlag{Name: "destination", Usage: "Destination address", Required: true},
					&cli.Float64Flag{Name: "buffer", Usage: "Corridor half-width in km", Value: models.DefaultBufferKm},
					&cli.StringFlag{Name: "start", Usage: "Start of the time window (defaults to now)"},
					&cli.StringFlag{Name: "end", Usage: "End of the time window (defaults to start + 4 days)"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Free-text relevance query"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of events", Value: models.DefaultResultLimit},
					&cli.StringFlag{Name: "profile", Usage: "driving, cycling or walking", Value: string(models.ProfileDriving)},
				},
			},
			{
				Name:   "corridor",
				Usage:  "Print the buffer polygon of a route as GeoJSON",
				Action: corridorCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "route",
						Usage:    "Route as lon,lat pairs separated by semicolons",
						Required: true,
					},
					&cli.Float64Flag{Name: "buffer", Usage: "Corridor half-width in km", Value: models.DefaultBufferKm},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		os.Setenv("EVENTMAP_CONFIG", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	path := c.String("file")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	result, err := a.Ingest.Ingest(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, result)
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()
	req, err := searchRequest(c, time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.RouteEvents.FindEvents(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, resp)
}

// searchRequest builds the request from flags; now anchors the default window
func searchRequest(c *cli.Context, now time.Time) (*models.RouteEventsRequest, error) {
	start := now.UTC()
	if s := c.String("start"); s != "" {
		t, err := models.ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		start = t
	}
	end := start.AddDate(0, 0, 4)
	if s := c.String("end"); s != "" {
		t, err := models.ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		end = t
	}

	buffer := c.Float64("buffer")
	limit := c.Int("limit")
	return &models.RouteEventsRequest{
		OriginAddress:      c.String("origin"),
		DestinationAddress: c.String("destination"),
		BufferDistance:     &buffer,
		StartWindow:        models.Timestamp{Time: start},
		EndWindow:          models.Timestamp{Time: end},
		QueryText:          c.String("query"),
		ResultLimit:        &limit,
		TravelProfile:      c.String("profile"),
	}, nil
}

func corridorCommand(c *cli.Context) error {
	points, err := parseRoute(c.String("route"))
	if err != nil {
		return err
	}
	route, err := models.NewRoute(points)
	if err != nil {
		return err
	}
	corridor, err := spatial.BuildCorridor(c.Context, route, c.Float64("buffer"))
	if err != nil {
		return err
	}

	return writeJSON(c.App.Writer, map[string]any{
		"type": "Feature",
		"geometry": map[string]any{
			"type":        "Polygon",
			"coordinates": []models.Coordinates{corridor.Ring},
		},
		"properties": map[string]any{
			"buffer_km": corridor.BufferKm,
			"vertices":  len(corridor.Ring),
		},
	})
}

// parseRoute reads "lon,lat;lon,lat;..."
func parseRoute(s string) ([]models.GeoPoint, error) {
	var points []models.GeoPoint
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		lonStr, latStr, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("invalid route point %q, expected lon,lat", pair)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", pair, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", pair, err)
		}
		points = append(points, models.GeoPoint{Lon: lon, Lat: lat})
	}
	return points, nil
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
