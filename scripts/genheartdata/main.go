// Generates a synthetic heart disease dataset with the same schema as the
// UCI Cleveland file, for offline development and load testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"

	"cardioml/internal/dataset"
)

func main() {
	var (
		out     = flag.String("out", "data/heart_synthetic.csv", "Destination CSV path")
		rows    = flag.Int("rows", 303, "Number of rows to generate")
		missing = flag.Float64("missing", 0.02, "Fraction of ca/thal cells left missing")
		seed    = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating synthetic heart disease data...\n")
	fmt.Printf("  Rows: %d\n", *rows)
	fmt.Printf("  Missing fraction: %.3f\n", *missing)
	fmt.Printf("  Output: %s\n", *out)

	ds := generate(*rows, *missing, rand.New(rand.NewSource(*seed)))

	if err := dataset.SaveCSV(ds, *out); err != nil {
		log.Fatalf("Failed to write dataset: %v", err)
	}

	positives := 0
	for _, y := range ds.Labels {
		positives += y
	}
	fmt.Printf("Wrote %d rows (%d positive, %d negative) to %s\n",
		ds.Len(), positives, ds.Len()-positives, *out)
}

// generate draws rows from two overlapping class-conditional distributions
// so trained models have signal to find. Value ranges follow the Cleveland
// columns: age, sex, cp, trestbps, chol, fbs, restecg, thalach, exang,
// oldpeak, slope, ca, thal.
func generate(rows int, missingFrac float64, rng *rand.Rand) *dataset.Dataset {
	ds := &dataset.Dataset{
		Features: make([][]float64, 0, rows),
		Labels:   make([]int, 0, rows),
	}

	for i := 0; i < rows; i++ {
		y := 0
		if rng.Float64() < 0.46 {
			y = 1
		}

		// Disease cases skew older, lower peak heart rate, higher oldpeak.
		shift := 0.0
		if y == 1 {
			shift = 1.0
		}

		row := []float64{
			clamp(normal(rng, 54+4*shift, 9), 29, 77),     // age
			binary(rng, 0.55+0.13*shift),                  // sex
			float64(rng.Intn(4)),                          // cp
			clamp(normal(rng, 131+3*shift, 17), 94, 200),  // trestbps
			clamp(normal(rng, 246+5*shift, 51), 126, 564), // chol
			binary(rng, 0.15),                             // fbs
			float64(rng.Intn(3)),                          // restecg
			clamp(normal(rng, 150-12*shift, 22), 71, 202), // thalach
			binary(rng, 0.2+0.25*shift),                   // exang
			clamp(normal(rng, 0.8+0.8*shift, 1), 0, 6.2),  // oldpeak
			float64(rng.Intn(3)),                          // slope
			float64(rng.Intn(4)),                          // ca
			float64(rng.Intn(4)),                          // thal
		}

		// The real Cleveland file has a handful of ? cells in ca and thal.
		if rng.Float64() < missingFrac {
			row[11] = math.NaN()
		}
		if rng.Float64() < missingFrac {
			row[12] = math.NaN()
		}

		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, y)
	}

	return ds
}

func normal(rng *rand.Rand, mean, std float64) float64 {
	return mean + rng.NormFloat64()*std
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func binary(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}
