package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cardioml/internal/cfg"
	"cardioml/internal/metrics"
	"cardioml/internal/model"
	"cardioml/internal/preprocess"
	"cardioml/internal/serve"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath = flag.String("model", "", "Path to model artifact (overrides config)")
		prepPath  = flag.String("preprocessor", "", "Path to preprocessor artifact (overrides config)")
		asJSON    = flag.Bool("json", false, "Print the result as JSON")

		age      = flag.Float64("age", 63, "Age in years")
		sex      = flag.Float64("sex", 1, "Sex (1 = male, 0 = female)")
		cp       = flag.Float64("cp", 3, "Chest pain type (0-3)")
		trestbps = flag.Float64("trestbps", 145, "Resting blood pressure (mm Hg)")
		chol     = flag.Float64("chol", 233, "Serum cholesterol (mg/dl)")
		fbs      = flag.Float64("fbs", 1, "Fasting blood sugar > 120 mg/dl (1 = true)")
		restecg  = flag.Float64("restecg", 0, "Resting ECG result (0-2)")
		thalach  = flag.Float64("thalach", 150, "Maximum heart rate achieved")
		exang    = flag.Float64("exang", 0, "Exercise induced angina (1 = yes)")
		oldpeak  = flag.Float64("oldpeak", 2.3, "ST depression induced by exercise")
		slope    = flag.Float64("slope", 0, "Slope of peak exercise ST segment (0-2)")
		ca       = flag.Float64("ca", 0, "Number of major vessels colored (0-4)")
		thal     = flag.Float64("thal", 1, "Thalassemia code (0-3)")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	mPath := firstNonEmpty(*modelPath, config.ModelPath, filepath.Join(config.ArtifactsDir, "model.json"))
	pPath := firstNonEmpty(*prepPath, config.PreprocessorPath, filepath.Join(config.ArtifactsDir, "preprocessor.json"))

	clf, info, err := model.Load(mPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", mPath).Msg("Failed to load model artifact")
	}

	preprocessor, err := preprocess.Load(pPath)
	if err != nil {
		log.Warn().Err(err).Str("path", pPath).Msg("Failed to load preprocessor, using unscaled features")
		preprocessor = nil
	}

	service := serve.New(clf, preprocessor, info, metrics.New(), nil)

	patient := serve.PatientFeatures{
		Age: *age, Sex: *sex, Cp: *cp, Trestbps: *trestbps, Chol: *chol,
		Fbs: *fbs, Restecg: *restecg, Thalach: *thalach, Exang: *exang,
		Oldpeak: *oldpeak, Slope: *slope, Ca: *ca, Thal: *thal,
	}

	result, err := service.Predict(context.Background(), patient)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}

	if *asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode result")
		}
		fmt.Println(string(out))
		return
	}

	outcome := "no heart disease"
	if result.Prediction == 1 {
		outcome = "heart disease"
	}
	fmt.Printf("Model:       %s\n", clf.Name())
	fmt.Printf("Prediction:  %s (%d)\n", outcome, result.Prediction)
	fmt.Printf("Probability: %.3f\n", result.Probability)
	fmt.Printf("Confidence:  %s\n", result.Confidence)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
