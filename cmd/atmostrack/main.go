package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/atmostrack/atmostrack/internal/api"
	"github.com/atmostrack/atmostrack/internal/classify"
	"github.com/atmostrack/atmostrack/internal/ingest"
	"github.com/atmostrack/atmostrack/internal/insight"
	"github.com/atmostrack/atmostrack/internal/live"
	"github.com/atmostrack/atmostrack/internal/models"
	"github.com/atmostrack/atmostrack/internal/store"
	"github.com/atmostrack/atmostrack/internal/window"
)

var defaultDevices = []models.Device{
	{DeviceID: "esp32-01", Name: "AtmosTrack unit 1", Active: true},
}

var cli struct {
	DB            string        `help:"Path to the sqlite database." default:"data/atmostrack.db" env:"ATMOSTRACK_DB"`
	Port          string        `help:"HTTP server port." default:"8080" env:"PORT"`
	ClassifierURL string        `help:"Base URL of the pollution-source model server." default:"http://localhost:8000" env:"CLASSIFIER_URL"`
	NoClassify    bool          `help:"Disable classification enrichment (run without a model server)."`
	Timeout       time.Duration `help:"Classification call timeout." default:"5s" env:"CLASSIFY_TIMEOUT"`
	Retention     time.Duration `help:"How long readings stay queryable." default:"24h" env:"RETENTION"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("atmostrack"),
		kong.Description("AtmosTrack sensor backend: ingestion, feature aggregation, and live broadcast."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	for _, device := range defaultDevices {
		if err := st.UpsertDevice(device); err != nil {
			log.Fatalf("upsert device %s: %v", device.DeviceID, err)
		}
	}

	liveStore := live.NewStore(live.DefaultHistory)
	agg := ingest.NewAggregator(window.DefaultCapacity)

	var classifier classify.Classifier
	if cli.NoClassify {
		log.Println("classification disabled (--no-classify)")
	} else {
		classifier = classify.NewClient(cli.ClassifierURL)
	}
	gateway := classify.NewGateway(classifier, liveStore, st, cli.Timeout)

	pipeline := ingest.NewPipeline(agg, liveStore, st, gateway)

	var insightSvc *insight.Service
	if svc, err := insight.NewService(liveStore); err != nil {
		log.Printf("insight disabled: %v", err)
	} else {
		insightSvc = svc
	}

	server := api.NewServer(pipeline, liveStore, st, insightSvc, cli.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go st.RunRetention(ctx, cli.Retention)
	if insightSvc != nil {
		go insightSvc.Run(ctx)
	}

	log.Printf("starting server on :%s", cli.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}

	// Let in-flight enrichment calls resolve before the process exits.
	gateway.Wait()
}
