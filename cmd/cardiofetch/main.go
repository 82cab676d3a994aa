package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cardioml/internal/cfg"
	"cardioml/internal/dataset"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		url      = flag.String("url", "", "Dataset URL (overrides config)")
		fallback = flag.String("fallback", "", "Fallback URL (overrides config)")
		out      = flag.String("out", "", "Destination CSV path (overrides config)")
		timeout  = flag.Duration("timeout", 0, "Download timeout (overrides config)")
		force    = flag.Bool("force", false, "Re-download even if the file exists")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *url != "" {
		config.DatasetURL = *url
	}
	if *fallback != "" {
		config.FallbackURL = *fallback
	}
	if *out != "" {
		config.DataPath = *out
	}
	if *timeout > 0 {
		config.FetchTimeout = *timeout
	}

	var ds *dataset.Dataset
	if _, err := os.Stat(config.DataPath); err == nil && !*force {
		log.Info().Str("path", config.DataPath).Msg("Dataset already present, loading from disk")
		ds, err = dataset.Load(config.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load dataset")
		}
	} else {
		fetcher := dataset.NewFetcher(config.DatasetURL, config.FallbackURL, config.FetchTimeout)

		ctx, cancel := context.WithTimeout(context.Background(), 2*config.FetchTimeout+time.Minute)
		defer cancel()

		ds, err = fetcher.Fetch(ctx, config.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch dataset")
		}
	}

	printSummary(dataset.Summarize(ds), config.DataPath)
}

func printSummary(s dataset.Summary, path string) {
	fmt.Printf("Dataset: %s\n", path)
	fmt.Printf("Rows: %d (positive %d, negative %d)\n\n", s.Rows, s.Positive, s.Negative)

	fmt.Printf("%-10s %8s %8s %10s %10s %10s %10s\n",
		"column", "count", "missing", "mean", "std", "min", "max")
	for _, col := range s.Columns {
		fmt.Printf("%-10s %8d %8d %10.2f %10.2f %10.2f %10.2f\n",
			col.Name, col.Count, col.Missing, col.Mean, col.Std, col.Min, col.Max)
	}
}
