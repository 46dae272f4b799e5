package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/biotrack-data/motion.report/internal/actuator"
	"github.com/biotrack-data/motion.report/internal/api"
	"github.com/biotrack-data/motion.report/internal/camera"
	"github.com/biotrack-data/motion.report/internal/config"
	"github.com/biotrack-data/motion.report/internal/db"
	"github.com/biotrack-data/motion.report/internal/exercise"
	"github.com/biotrack-data/motion.report/internal/narration"
	"github.com/biotrack-data/motion.report/internal/pose"
	"github.com/biotrack-data/motion.report/internal/session"
	"github.com/biotrack-data/motion.report/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode with a fake camera and a recorded landmark trace")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "motion.db", "Path to the sqlite session store")
	configPath    = flag.String("config", "", "Path to a tuning config JSON file (defaults to the embedded defaults)")
	exercisesPath = flag.String("exercises", "", "Path to an exercise definitions JSON file (defaults to the built-in registry)")
	tracePath     = flag.String("trace", "fixtures/shoulder_flexion.jsonl", "Landmark trace replayed by the dev-mode detector")
	actuatorPort  = flag.String("actuator-port", "", "Serial port for the camera mount controller (empty disables the mount)")
	migrationsDir = flag.String("migrations", "migrations", "Path to the sqlite migrations directory")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("motion.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	var registry *exercise.Registry
	var err error
	if *exercisesPath != "" {
		registry, err = exercise.LoadRegistry(*exercisesPath)
	} else {
		registry, err = exercise.DefaultRegistry()
	}
	if err != nil {
		log.Fatalf("failed to load exercise registry: %v", err)
	}

	// The capture device and the pose detector are external collaborators;
	// this build ships the trace-replay pair used in dev mode. A deployment
	// with a live camera swaps these two values and nothing else.
	var device camera.Device
	var detector pose.Detector
	if *devMode {
		device = camera.NewFakeDevice()
		detector, err = pose.NewTraceDetectorFromFile(*tracePath, true)
		if err != nil {
			log.Fatalf("failed to load landmark trace: %v", err)
		}
	} else {
		log.Fatal("no live capture backend is configured on this build; run with -dev")
	}
	arbiter := camera.NewArbiter(device)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	announcer := narration.NewAnnouncer(narration.LogSink{}, tuning.GetNarrationQueueSize())
	defer announcer.Close()

	var mount *actuator.Driver
	if *actuatorPort != "" {
		port, err := actuator.Open(*actuatorPort, actuator.PortOptions{})
		if err != nil {
			log.Fatalf("failed to open actuator port: %v", err)
		}
		mount = actuator.NewDriver(port, tuning.GetActuatorQueueSize())
		defer mount.Close()
	}

	mgr := session.NewManager(arbiter, detector, registry, tuning, announcer, mount, database)
	defer mgr.Shutdown()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()

		// mount the admin debugging routes
		database.AttachAdminRoutes(mux)
		arbiter.AttachAdminRoutes(mux)

		apiServer := api.NewServer(mgr, arbiter, registry, database)
		mux.Handle("/api/", apiServer.ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
