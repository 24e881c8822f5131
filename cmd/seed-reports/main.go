package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/adapters/repository/mongostore"
	"github.com/commutewatch/riskengine/internal/testreports"
	"github.com/commutewatch/riskengine/pkg/logger"
)

const (
	defaultNumReports = 1000
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		numReports = flag.Int("reports", defaultNumReports, "Number of reports to generate")
		numRoutes  = flag.Int("routes", 20, "Number of routes")
		numSaccos  = flag.Int("saccos", 5, "Number of operators")
		days       = flag.Int("days", 30, "Spread reports over the last N days")
		devices    = flag.Int("devices", 0, "Distinct device fingerprints (default reports/4)")
		seed       = flag.Int64("seed", 1, "Random seed")
		batch      = flag.Int("batch", 500, "Reports per store write")
		workers    = flag.Int("workers", 2, "Concurrent store writers")
		mongoURI   = flag.String("mongo-uri", "", "MongoDB URI; stdout when empty")
		mongoDB    = flag.String("mongo-db", "commutewatch", "MongoDB database")
		baseURL    = flag.String("url", "", "Service base URL; requests a recalculation when set")
		timeout    = flag.Duration("timeout", 30*time.Second, "HTTP request timeout")
		verbose    = flag.Bool("verbose", false, "Log every batch")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testreports.ShowHelp()
		return
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	// Logs go to stderr so stdout stays a clean JSON stream.
	if err := logger.InitWithOptions(logger.Options{Level: level, Output: os.Stderr}); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	var sink repository.ReportWriter = testreports.NewJSONSink(os.Stdout)
	if *mongoURI != "" {
		store, err := mongostore.Connect(ctx, *mongoURI, *mongoDB, log.Named("mongo"))
		if err != nil {
			log.Error(ctx, "mongo connect failed", logger.Error(err))
			os.Exit(1)
		}
		defer func() { _ = store.Close(context.Background()) }()
		sink = store
	}

	cfg := &testreports.Config{
		NumReports: *numReports,
		NumRoutes:  *numRoutes,
		NumSaccos:  *numSaccos,
		Days:       *days,
		Devices:    *devices,
		Seed:       *seed,
		BatchSize:  *batch,
		Workers:    *workers,
		BaseURL:    *baseURL,
		Timeout:    *timeout,
		Verbose:    *verbose,
	}
	if _, err := testreports.Run(ctx, cfg, sink, time.Now().UTC()); err != nil {
		log.Error(ctx, "seeding failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
