package serve

import (
	"errors"
	"testing"
)

func samplePatient() PatientFeatures {
	return PatientFeatures{
		Age:      63,
		Sex:      1,
		Cp:       3,
		Trestbps: 145,
		Chol:     233,
		Fbs:      1,
		Restecg:  0,
		Thalach:  150,
		Exang:    0,
		Oldpeak:  2.3,
		Slope:    0,
		Ca:       0,
		Thal:     1,
	}
}

func TestPatientFeatures_Vector(t *testing.T) {
	got := samplePatient().Vector()
	want := []float64{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1}

	if len(got) != 13 {
		t.Fatalf("Vector length = %d, want 13", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPatientFeatures_Validate_SamplePatient(t *testing.T) {
	if err := samplePatient().Validate(); err != nil {
		t.Errorf("Sample patient rejected: %v", err)
	}
}

func TestPatientFeatures_Validate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PatientFeatures)
		field  string
	}{
		{"negative age", func(p *PatientFeatures) { p.Age = -1 }, "age"},
		{"age above limit", func(p *PatientFeatures) { p.Age = 121 }, "age"},
		{"sex out of set", func(p *PatientFeatures) { p.Sex = 2 }, "sex"},
		{"fractional sex", func(p *PatientFeatures) { p.Sex = 0.5 }, "sex"},
		{"cp above range", func(p *PatientFeatures) { p.Cp = 4 }, "cp"},
		{"fractional cp", func(p *PatientFeatures) { p.Cp = 1.5 }, "cp"},
		{"negative trestbps", func(p *PatientFeatures) { p.Trestbps = -10 }, "trestbps"},
		{"negative chol", func(p *PatientFeatures) { p.Chol = -5 }, "chol"},
		{"fbs out of set", func(p *PatientFeatures) { p.Fbs = 3 }, "fbs"},
		{"restecg above range", func(p *PatientFeatures) { p.Restecg = 3 }, "restecg"},
		{"negative thalach", func(p *PatientFeatures) { p.Thalach = -150 }, "thalach"},
		{"exang out of set", func(p *PatientFeatures) { p.Exang = -1 }, "exang"},
		{"negative oldpeak", func(p *PatientFeatures) { p.Oldpeak = -0.1 }, "oldpeak"},
		{"slope above range", func(p *PatientFeatures) { p.Slope = 5 }, "slope"},
		{"ca above range", func(p *PatientFeatures) { p.Ca = 5 }, "ca"},
		{"thal above range", func(p *PatientFeatures) { p.Thal = 4 }, "thal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := samplePatient()
			tc.mutate(&p)

			err := p.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if vErr.Field != tc.field {
				t.Errorf("ValidationError.Field = %q, want %q", vErr.Field, tc.field)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "age", Value: -1, Reason: "must be between 0 and 120"}
	want := "invalid age: must be between 0 and 120, got -1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
