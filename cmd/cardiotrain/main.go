package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cardioml/internal/cfg"
	"cardioml/internal/dataset"
	"cardioml/internal/eval"
	"cardioml/internal/model"
	"cardioml/internal/tracking"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// saveable is a classifier that can persist itself as a JSON artifact.
type saveable interface {
	model.Classifier
	Save(path string) error
}

// candidate is one model family competing in a training run.
type candidate struct {
	name   string
	params map[string]any
	train  func(X [][]float64, y []int) (saveable, error)
}

// trained holds everything a finished candidate produced.
type trained struct {
	name         string
	clf          saveable
	params       map[string]any
	cv           eval.FoldScores
	trainMetrics eval.Metrics
	testMetrics  eval.Metrics
	path         string
}

func main() {
	var (
		dataPath   = flag.String("data", "", "Path to dataset CSV (overrides config)")
		outputDir  = flag.String("output", "", "Artifacts output directory (overrides config)")
		modelArg   = flag.String("model", "both", "Model to train: logistic, forest, both")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		noFetch    = flag.Bool("no-fetch", false, "Fail instead of downloading when the dataset is missing")
		noRegister = flag.Bool("no-register", false, "Skip registering the best model")
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
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	if *outputDir != "" {
		config.ArtifactsDir = *outputDir
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Data Path: %s\n", config.DataPath)
	fmt.Printf("Artifacts Directory: %s\n", config.ArtifactsDir)
	fmt.Printf("Test Fraction: %.2f\n", config.TestFraction)
	fmt.Printf("CV Folds: %d\n", config.CVFolds)
	fmt.Printf("Seed: %d\n", config.Seed)
	fmt.Println("==============================")

	ensureDataset(config, *noFetch)

	ds, err := dataset.Load(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}
	summary := dataset.Summarize(ds)
	log.Info().
		Int("rows", summary.Rows).
		Int("positive", summary.Positive).
		Int("negative", summary.Negative).
		Msg("Dataset loaded")

	split, err := dataset.LoadAndPreprocess(config.DataPath, config.TestFraction, config.Seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare dataset")
	}

	store, err := tracking.New(config.TrackingPath)
	if err != nil {
		log.Warn().Err(err).Msg("Tracking store unavailable, continuing without run history")
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	candidates := buildCandidates(config, *modelArg)
	if len(candidates) == 0 {
		log.Fatal().Str("model", *modelArg).Msg("Unknown model selection")
	}

	var results []*trained
	var best *trained
	for _, c := range candidates {
		result, err := trainCandidate(c, config, split, store)
		if err != nil {
			log.Fatal().Err(err).Str("model", c.name).Msg("Training failed")
		}
		results = append(results, result)
		if best == nil || result.testMetrics.ROCAUC > best.testMetrics.ROCAUC {
			best = result
		}
	}

	saveSharedArtifacts(config, split, best)

	version := ""
	if store != nil && !*noRegister {
		v, err := store.Register(best.name, best.path, best.testMetrics)
		if err != nil {
			log.Error().Err(err).Msg("Failed to register model version")
		} else if err := store.Activate(v.Version); err != nil {
			log.Error().Err(err).Msg("Failed to activate model version")
		} else {
			version = v.Version
		}
	}

	printSummary(results, best, version, config.ArtifactsDir)
}

// ensureDataset downloads the dataset when the configured file is missing.
func ensureDataset(config cfg.Settings, noFetch bool) {
	if _, err := os.Stat(config.DataPath); err == nil {
		return
	}
	if noFetch {
		log.Fatal().Str("path", config.DataPath).Msg("Dataset not found and fetching is disabled")
	}

	log.Info().Str("url", config.DatasetURL).Str("path", config.DataPath).Msg("Dataset missing, downloading")
	fetcher := dataset.NewFetcher(config.DatasetURL, config.FallbackURL, config.FetchTimeout)
	ds, err := fetcher.Fetch(context.Background(), config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch dataset")
	}
	log.Info().Int("rows", ds.Len()).Msg("Dataset downloaded")
}

// buildCandidates selects which model families to train.
func buildCandidates(config cfg.Settings, selection string) []candidate {
	logistic := candidate{
		name: model.TypeLogistic,
		params: map[string]any{
			"learning_rate": config.Logistic.LearningRate,
			"l2_penalty":    config.Logistic.L2Penalty,
			"max_iter":      config.Logistic.MaxIter,
		},
		train: func(X [][]float64, y []int) (saveable, error) {
			return model.TrainLogistic(X, y, model.LogisticConfig{
				LearningRate: config.Logistic.LearningRate,
				L2Penalty:    config.Logistic.L2Penalty,
				MaxIter:      config.Logistic.MaxIter,
			})
		},
	}
	forest := candidate{
		name: model.TypeForest,
		params: map[string]any{
			"estimators":        config.Forest.Estimators,
			"max_depth":         config.Forest.MaxDepth,
			"min_samples_split": config.Forest.MinSamplesSplit,
			"min_samples_leaf":  config.Forest.MinSamplesLeaf,
			"seed":              config.Seed,
		},
		train: func(X [][]float64, y []int) (saveable, error) {
			return model.TrainForest(X, y, model.ForestConfig{
				Estimators:      config.Forest.Estimators,
				MaxDepth:        config.Forest.MaxDepth,
				MinSamplesSplit: config.Forest.MinSamplesSplit,
				MinSamplesLeaf:  config.Forest.MinSamplesLeaf,
				Seed:            config.Seed,
			})
		},
	}

	switch selection {
	case "logistic":
		return []candidate{logistic}
	case "forest":
		return []candidate{forest}
	case "both":
		return []candidate{logistic, forest}
	}
	return nil
}

// trainCandidate cross-validates, fits on the full training partition,
// scores both partitions, saves the artifact, and logs the run.
func trainCandidate(c candidate, config cfg.Settings, split *dataset.SplitResult, store *tracking.Store) (*trained, error) {
	log.Info().Str("model", c.name).Msg("Training model")

	trainFn := eval.TrainFunc(func(X [][]float64, y []int) (model.Classifier, error) {
		return c.train(X, y)
	})

	cv, err := eval.CrossValidate(trainFn, split.XTrain, split.YTrain, config.CVFolds, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("cross-validation failed: %w", err)
	}

	clf, err := c.train(split.XTrain, split.YTrain)
	if err != nil {
		return nil, err
	}

	trainMetrics, err := eval.Evaluate(clf, split.XTrain, split.YTrain)
	if err != nil {
		return nil, fmt.Errorf("failed to score training partition: %w", err)
	}
	testMetrics, err := eval.Evaluate(clf, split.XTest, split.YTest)
	if err != nil {
		return nil, fmt.Errorf("failed to score test partition: %w", err)
	}

	path := filepath.Join(config.ArtifactsDir, c.name+".json")
	if err := clf.Save(path); err != nil {
		return nil, fmt.Errorf("failed to save model artifact: %w", err)
	}

	result := &trained{
		name:         c.name,
		clf:          clf,
		params:       c.params,
		cv:           cv,
		trainMetrics: trainMetrics,
		testMetrics:  testMetrics,
		path:         path,
	}

	if store != nil {
		run := tracking.Run{
			ModelType:    c.name,
			Params:       c.params,
			CVScores:     cv,
			TrainMetrics: trainMetrics,
			TestMetrics:  testMetrics,
			ArtifactPath: path,
		}
		if err := store.LogRun(&run); err != nil {
			log.Warn().Err(err).Msg("Failed to log training run")
		}
	}

	log.Info().
		Str("model", c.name).
		Float64("cv_auc", cv.Mean).
		Float64("test_auc", testMetrics.ROCAUC).
		Msg("Model trained")

	return result, nil
}

// saveSharedArtifacts writes the fitted preprocessor and a canonical copy
// of the winning model for the serving default paths.
func saveSharedArtifacts(config cfg.Settings, split *dataset.SplitResult, best *trained) {
	pPath := config.PreprocessorPath
	if pPath == "" {
		pPath = filepath.Join(config.ArtifactsDir, "preprocessor.json")
	}
	if err := split.Preprocessor.Save(pPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to save preprocessor artifact")
	}

	mPath := config.ModelPath
	if mPath == "" {
		mPath = filepath.Join(config.ArtifactsDir, "model.json")
	}
	if err := best.clf.Save(mPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to save model artifact")
	}
}

func printSummary(results []*trained, best *trained, version, artifactsDir string) {
	fmt.Println()
	fmt.Println("=== Training Summary ===")
	fmt.Printf("%-22s %-18s %-10s %-10s %-10s\n", "model", "cv-auc", "train-auc", "test-auc", "test-acc")
	for _, r := range results {
		cv := fmt.Sprintf("%.3f ± %.3f", r.cv.Mean, r.cv.Std)
		fmt.Printf("%-22s %-18s %-10.3f %-10.3f %-10.3f\n",
			r.name, cv, r.trainMetrics.ROCAUC, r.testMetrics.ROCAUC, r.testMetrics.Accuracy)
	}
	fmt.Println()
	fmt.Printf("Best model: %s (test ROC-AUC %.3f)\n", best.name, best.testMetrics.ROCAUC)
	if version != "" {
		fmt.Printf("Registered version: %s (active)\n", version)
	}
	fmt.Printf("Artifacts: %s\n", artifactsDir)
}
