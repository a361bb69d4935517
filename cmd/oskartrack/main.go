// Command oskartrack runs the person tracking service: it serves the HTTP
// API, or with -frames processes a directory of frames in one batch.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/analytics"
	"github.com/oskar-77/OskarTrackSystem33/internal/api"
	"github.com/oskar-77/OskarTrackSystem33/internal/config"
	"github.com/oskar-77/OskarTrackSystem33/internal/db"
	"github.com/oskar-77/OskarTrackSystem33/internal/detection"
	"github.com/oskar-77/OskarTrackSystem33/internal/framesource"
	"github.com/oskar-77/OskarTrackSystem33/internal/metrics"
	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
	"github.com/oskar-77/OskarTrackSystem33/internal/version"
	"github.com/oskar-77/OskarTrackSystem33/internal/ws"
	"github.com/oskar-77/OskarTrackSystem33/internal/zones"
)

var (
	listen       = flag.String("listen", ":8080", "Listen address")
	dbPath       = flag.String("db", "oskartrack.db", "SQLite database path")
	configPath   = flag.String("config", "", "Tuning config JSON (defaults built in)")
	detectorURL  = flag.String("detector", "", "HTTP detection service base URL, e.g. http://localhost:8081")
	detectorGRPC = flag.String("detector-grpc", "", "gRPC detection service address, e.g. localhost:9090")
	framesDir    = flag.String("frames", "", "Process the image frames in this directory and exit")
	stride       = flag.Int("stride", 0, "Process every Nth frame (overrides sample_stride)")
	fps          = flag.Float64("fps", 0, "Frame rate of the -frames input (overrides frame_rate)")
	zonesFile    = flag.String("zones", "", "JSON zone definitions to seed into the database")
	debug        = flag.Bool("debug", false, "Enable pipeline diagnostic logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: oskartrack [flags]\n       oskartrack [-db path] migrate <command>\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var diag io.Writer
	if *debug {
		diag = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, nil)

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if n, err := database.CloseOrphanedVisits(context.Background()); err != nil {
		log.Printf("failed to close orphaned visits: %v", err)
	} else if n > 0 {
		log.Printf("closed %d visits left open by a previous run", n)
	}

	det, closeDetector, err := newDetector(cfg, *detectorURL, *detectorGRPC)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer closeDetector()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := tracking.NewTracker(tracking.TrackerConfigFromTuning(cfg))
	var recOpts []analytics.RecorderOption
	if *framesDir != "" {
		// Batch input is timed by its frame rate, not by how fast it is processed.
		recOpts = append(recOpts, analytics.WithFrameClock(time.Now(), frameRate(cfg, *fps)))
	}
	recorder := analytics.NewRecorder(database, recOpts...)
	m := metrics.New()
	hub := ws.NewHub()
	defer hub.Close()

	opts := pipeline.OptionsFromTuning(cfg)
	if *stride > 0 {
		opts = append(opts, pipeline.WithStride(*stride))
	}
	opts = append(opts, pipeline.WithSink(pipeline.FanOut(recorder, m.Sink(tracker), hub)))
	p := pipeline.New(tracker, zones.NewIndex(), opts...)
	log.Printf("starting %s", version.String())
	log.Printf("tracker: max_disappeared=%d max_match_distance=%.0f stride=%d occlusion_frames=%d",
		tracker.Config.MaxDisappeared, tracker.Config.MaxMatchDistance, p.Stride(), p.EffectiveOcclusionFrames())

	server := api.NewServer(api.Config{
		DB:       database,
		Pipeline: p,
		Detector: det,
		Metrics:  m,
		Hub:      hub,
	})
	if err := server.ReloadZones(ctx); err != nil {
		log.Fatalf("failed to load zones: %v", err)
	}
	if *zonesFile != "" {
		data, err := os.ReadFile(*zonesFile)
		if err != nil {
			log.Fatalf("failed to read zones file: %v", err)
		}
		n, err := server.SeedZones(ctx, data)
		if err != nil {
			log.Fatalf("failed to seed zones: %v", err)
		}
		log.Printf("seeded %d zones from %s", n, *zonesFile)
	}

	if *framesDir != "" {
		if det == nil {
			log.Fatal("-frames requires -detector or -detector-grpc")
		}
		if err := runBatch(ctx, p, det, recorder, *framesDir, os.Stdout); err != nil {
			log.Fatalf("batch run failed: %v", err)
		}
		return
	}

	serve(ctx, server, database)
	if err := recorder.Flush(context.Background()); err != nil {
		log.Printf("failed to close open visits: %v", err)
	}
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// frameRate returns the -fps override when set, else the configured rate.
func frameRate(cfg *config.TuningConfig, override float64) float64 {
	if override > 0 {
		return override
	}
	return cfg.GetFrameRate()
}

// newDetector builds the configured detector. The returned close func is
// always safe to call.
func newDetector(cfg *config.TuningConfig, httpURL, grpcAddr string) (pipeline.Detector, func(), error) {
	opts := detection.OptionsFromTuning(cfg)
	switch {
	case httpURL != "" && grpcAddr != "":
		return nil, func() {}, errors.New("-detector and -detector-grpc are mutually exclusive")
	case grpcAddr != "":
		d, err := detection.NewGRPCDetector(grpcAddr, opts)
		if err != nil {
			return nil, func() {}, err
		}
		return d, func() { _ = d.Close() }, nil
	case httpURL != "":
		return detection.NewHTTPDetector(httpURL, opts), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

// runBatch processes a frame directory through the pipeline, closes the
// visits still open at the end and writes the run summary to out as JSON.
func runBatch(ctx context.Context, p *pipeline.FramePipeline, det pipeline.Detector, recorder *analytics.Recorder, dir string, out io.Writer) error {
	src, err := framesource.OpenDir(dir)
	if err != nil {
		return err
	}
	log.Printf("processing %d frames from %s (stride %d)", src.Len(), dir, p.Stride())

	start := time.Now()
	var summary pipeline.RunSummary
	processed, err := p.RunSampled(ctx, src, det, func(frameIndex int, res *pipeline.FrameResult) {
		summary.OnFrameResult(frameIndex, res)
		log.Printf("frame %d: %d people, %d detections", frameIndex, res.PersonCount(), res.DetectionCount)
	})
	if cerr := recorder.Flush(context.Background()); cerr != nil {
		log.Printf("failed to close open visits: %v", cerr)
	}
	if err != nil {
		return err
	}

	created, expired := p.Tracker().Totals()
	log.Printf("processed %d frames in %v: %d tracks created, %d expired, %d visits recorded",
		processed, time.Since(start).Round(time.Millisecond), created, expired, len(recorder.Finished()))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary.Stats())
}

func serve(ctx context.Context, server *api.Server, database *db.DB) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		// mount the admin debugging routes (accessible only over loopback or Tailscale)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach admin routes: %v", err)
		}

		srv := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
