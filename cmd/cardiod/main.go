package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cardioml/internal/cfg"
	"cardioml/internal/dashboard"
	"cardioml/internal/metrics"
	"cardioml/internal/model"
	"cardioml/internal/preprocess"
	"cardioml/internal/serve"
	"cardioml/internal/tracking"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	setupLogging()

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	m := metrics.New()

	store := openTracking(config)
	if store != nil {
		defer store.Close()
	}

	classifier, info := loadModel(config, store)
	preprocessor := loadPreprocessor(config)

	var auditor serve.Auditor
	if store != nil && config.LogPredictions {
		auditor = store
	}

	service := serve.New(classifier, preprocessor, info, m, auditor)
	server := serve.NewServer(service, config.APIPort)

	var dash *dashboard.Dashboard
	if config.DashboardEnabled {
		// A nil *tracking.Store must stay a nil interface for the reader.
		var reader dashboard.PredictionReader
		if store != nil {
			reader = store
		}
		dash = dashboard.New(service, reader, config.DashboardPort)
		if err := dash.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start dashboard")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	waitForShutdown(server, dash, errCh)
}

func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openTracking opens the experiment store, or returns nil when it is
// unavailable so the API can run without audit logging.
func openTracking(config cfg.Settings) *tracking.Store {
	store, err := tracking.New(config.TrackingPath)
	if err != nil {
		log.Warn().Err(err).Msg("Tracking store unavailable, continuing without audit logging")
		return nil
	}
	return store
}

// loadModel resolves the model artifact. An explicit MODEL_PATH wins,
// then the active registry version, then the latest registered version,
// then the canonical artifact path. A missing model leaves the service
// unavailable rather than failing startup.
func loadModel(config cfg.Settings, store *tracking.Store) (model.Classifier, model.Info) {
	paths := make([]string, 0, 3)
	if config.ModelPath != "" {
		paths = append(paths, config.ModelPath)
	}

	if store != nil && config.ModelPath == "" {
		if v, err := store.Active(); err == nil && v != nil {
			log.Info().Str("version", v.Version).Str("path", v.Path).Msg("Using active model version")
			paths = append(paths, v.Path)
		} else if v, err := store.Latest(); err == nil && v != nil {
			log.Info().Str("version", v.Version).Str("path", v.Path).Msg("No active version, using latest registered")
			paths = append(paths, v.Path)
		}
	}
	paths = append(paths, filepath.Join(config.ArtifactsDir, "model.json"))

	for _, path := range paths {
		clf, info, err := model.Load(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to load model artifact")
			continue
		}
		log.Info().Str("path", path).Str("model", clf.Name()).Msg("Model loaded")
		return clf, info
	}

	log.Warn().Msg("No model artifact available, starting unavailable")
	return nil, model.Info{}
}

// loadPreprocessor loads the preprocessor artifact, or returns nil so the
// service degrades to raw feature pass-through.
func loadPreprocessor(config cfg.Settings) *preprocess.Preprocessor {
	path := config.PreprocessorPath
	if path == "" {
		path = filepath.Join(config.ArtifactsDir, "preprocessor.json")
	}

	p, err := preprocess.Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load preprocessor, serving unscaled features")
		return nil
	}
	log.Info().Str("path", path).Msg("Preprocessor loaded")
	return p
}

// waitForShutdown blocks until a signal or server failure, then shuts
// everything down gracefully.
func waitForShutdown(server *serve.Server, dash *dashboard.Dashboard, errCh chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("API server failed")
	}

	log.Info().Msg("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server")
	}
	if dash != nil {
		if err := dash.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop dashboard")
		}
	}
}
