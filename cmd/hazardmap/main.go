package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lox/hazardmap/internal/api"
	"github.com/lox/hazardmap/internal/backend"
	"github.com/lox/hazardmap/internal/config"
	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/imagegen"
	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/scheduler"
	"github.com/lox/hazardmap/internal/status"
	"github.com/lox/hazardmap/internal/store"
	"github.com/lox/hazardmap/internal/tilecache"
	"github.com/lox/hazardmap/internal/viewer"
)

type CLI struct {
	EnvFile string `name:"env-file" default:".env" help:"Load environment variables from this file if it exists."`
	Backend string `help:"Backend base URL (overrides BACKEND_API_BASE_URL)."`

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Run the dashboard server (default)."`
	Files    FilesCmd    `cmd:"" help:"List the forecast dates the backend publishes."`
	Stats    StatsCmd    `cmd:"" help:"Print statistics for a forecast date."`
	Bounds   BoundsCmd   `cmd:"" help:"Print the extent of a forecast raster."`
	Download DownloadCmd `cmd:"" help:"Ask the backend to download the latest LHASA data."`
	Status   StatusCmd   `cmd:"" help:"Check whether the backend answers."`
	Audit    AuditCmd    `cmd:"" help:"Summarise recorded backend calls and archived payloads."`
}

// runtime is bound into every command's Run.
type runtime struct {
	cfg *config.Config
}

func (rt *runtime) client(opts ...backend.Option) *backend.Client {
	opts = append([]backend.Option{backend.WithRetries(rt.cfg.BackendRetries)}, opts...)
	return backend.NewClient(rt.cfg.BackendBaseURL, rt.cfg.BackendTimeout, opts...)
}

func (rt *runtime) openStore() (*store.Store, func(), error) {
	db, err := store.Open(rt.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("hazardmap"),
		kong.Description("Dashboard for the NASA LHASA landslide hazard forecast backend."),
		kong.UsageOnError(),
	)

	if err := config.LoadEnvFile(cli.EnvFile); err != nil {
		log.Fatal(err)
	}
	if cli.Backend != "" {
		os.Setenv("BACKEND_API_BASE_URL", cli.Backend)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	kctx.FatalIfErrorf(kctx.Run(&runtime{cfg: cfg}))
}

type ServeCmd struct {
	Addr   string `help:"Listen address (overrides HTTP_ADDR)."`
	NoPoll bool   `name:"no-poll" help:"Disable the background scheduler (server only, for local dev)."`
}

func (c *ServeCmd) Run(rt *runtime) error {
	cfg := rt.cfg
	if c.Addr != "" {
		cfg.HTTPAddr = c.Addr
	}

	st, closeStore, err := rt.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	log.Println("database migrated")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := rt.client(backend.WithAuditor(st), backend.WithArchiver(st))
	tiles := tilecache.New(client, cfg.TileCacheDir, cfg.TileCacheMaxAge, cfg.TileCacheSize)
	monitor := status.NewMonitor(client, st, nil)

	var gen imagegen.BannerGenerator
	if cfg.OpenAIAPIKey != "" {
		g, err := imagegen.NewGenerator(cfg.OpenAIAPIKey)
		if err != nil {
			log.Printf("banner generation disabled: %v", err)
		} else {
			gen = g
		}
	} else {
		log.Println("banner generation disabled: OPENAI_API_KEY not set")
	}
	banners := imagegen.NewBanners(gen, imagegen.NewCache(cfg.ImageCacheDir, 24*time.Hour))

	sessions := viewer.NewManager(ctx, viewer.ManagerConfig{
		Backend: client,
		Options: viewer.Options{
			BoundsPolicy: cfg.BoundsPolicy,
			View:         viewer.ViewState{Basemap: cfg.DefaultBasemap, Opacity: cfg.DefaultOpacity},
			Country:      cfg.DefaultCountry,
			TileURL: func(tif string) string {
				return backend.TileURLTemplate("", tif)
			},
		},
		Store: st,
		TTL:   cfg.SessionTTL,
	})

	server := api.NewServer(api.Config{
		Sessions:      sessions,
		Backend:       client,
		Monitor:       monitor,
		Tiles:         tiles,
		Banners:       banners,
		History:       st,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		ServeMetrics:  cfg.MetricsAddr == "",
	})

	sched := scheduler.New(scheduler.Config{
		Monitor:        monitor,
		StatusInterval: cfg.StatusInterval,
		Sessions:       sessions,
		Janitor:        st,
		Retention:      cfg.AuditRetention,
		Tiles:          tiles,
		Banners:        banners,
		Forecasts:      client,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTPAddr, cfg.ShutdownTimeout)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return runMetrics(gctx, cfg.MetricsAddr, cfg.ShutdownTimeout)
		})
	}
	if !c.NoPoll {
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	log.Printf("backend %s, bounds failures %s", cfg.BackendBaseURL, cfg.BoundsPolicy)
	return g.Wait()
}

func runMetrics(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics: listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type FilesCmd struct{}

func (c *FilesCmd) Run(rt *runtime) error {
	files, err := rt.client().Files(context.Background())
	if err != nil {
		return err
	}
	reg := viewer.NewRegistry(files)
	for _, d := range reg.Dates() {
		info, _ := reg.Lookup(d)
		fmt.Printf("%s  %s\n", d, info.FileName)
	}
	fmt.Printf("%d forecasts\n", reg.Len())
	return nil
}

type StatsCmd struct {
	Date string `arg:"" optional:"" help:"Forecast date (YYYY-MM-DD), defaults to the latest."`
}

func (c *StatsCmd) Run(rt *runtime) error {
	ctx := context.Background()
	client := rt.client()
	sel, err := resolveDate(ctx, client, c.Date)
	if err != nil {
		return err
	}
	stats, err := client.Statistics(ctx, sel.ActiveFile)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", sel.ActiveDate, sel.ActiveFile)
	for _, m := range hazard.Metrics(stats) {
		fmt.Printf("  %-20s %s\n", m.Label, m.Value)
	}
	fmt.Println(hazard.Summarize(sel.ActiveDate, stats))
	return nil
}

type BoundsCmd struct {
	Target string `arg:"" help:"Forecast date (YYYY-MM-DD) or raster file name."`
}

func (c *BoundsCmd) Run(rt *runtime) error {
	ctx := context.Background()
	client := rt.client()
	tif := c.Target
	if _, err := time.Parse(models.DateLayout, c.Target); err == nil {
		sel, err := resolveDate(ctx, client, c.Target)
		if err != nil {
			return err
		}
		tif = sel.ActiveFile
	}

	b, err := client.Bounds(ctx, tif)
	if err != nil {
		return err
	}
	fit := viewer.FitBounds(b)
	fmt.Printf("%s\n  lon %.4f .. %.4f\n  lat %.4f .. %.4f\n", tif, b.MinLon(), b.MaxLon(), b.MinLat(), b.MaxLat())
	fmt.Printf("  south-west (%.4f, %.4f) north-east (%.4f, %.4f)\n",
		fit.SouthWest.Lat, fit.SouthWest.Lng, fit.NorthEast.Lat, fit.NorthEast.Lng)
	return nil
}

// resolveDate maps a date, or the latest one when empty, to its raster.
func resolveDate(ctx context.Context, client *backend.Client, date string) (viewer.Selection, error) {
	files, err := client.Files(ctx)
	if err != nil {
		return viewer.Selection{}, err
	}
	reg := viewer.NewRegistry(files)
	if date == "" {
		latest, ok := reg.Latest()
		if !ok {
			return viewer.Selection{}, errors.New("backend publishes no forecasts")
		}
		date = latest
	}
	sel := viewer.Resolve(reg, date)
	if sel.State != viewer.DateResolvedActive {
		return sel, errors.New(sel.Err)
	}
	return sel, nil
}

type DownloadCmd struct {
	Timeout time.Duration `default:"5m" help:"How long to wait for the backend."`
}

func (c *DownloadCmd) Run(rt *runtime) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	log.Println("requesting backend data download")
	if err := rt.client().Download(ctx); err != nil {
		return err
	}
	log.Println("done")
	return nil
}

type StatusCmd struct{}

func (c *StatusCmd) Run(rt *runtime) error {
	check := status.NewMonitor(rt.client(), nil, nil).Check(context.Background())
	fmt.Printf("%s (%dms)\n", status.Label(check.Status), check.LatencyMS)
	if check.Status != models.StatusOnline {
		return fmt.Errorf("backend %s: %s", rt.cfg.BackendBaseURL, check.Error)
	}
	return nil
}
