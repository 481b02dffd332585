package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Scaler maps raw measurements into the space the classifier was fitted in.
type Scaler interface {
	Transform(vector FeatureVector) (ScaledVector, error)
}

// StandardScaler applies (x - mean) / scale per feature.
type StandardScaler struct {
	FeatureNames []string  `json:"feature_names,omitempty"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

func (s *StandardScaler) Transform(vector FeatureVector) (ScaledVector, error) {
	if len(s.Mean) != NumFeatures || len(s.Scale) != NumFeatures {
		return ScaledVector{}, errors.New("scaler not fitted for 9 features")
	}
	var scaled ScaledVector
	for i, value := range vector {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		scaled[i] = (value - s.Mean[i]) / scale
	}
	return scaled, nil
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) != NumFeatures {
		return fmt.Errorf("mean has %d entries, want %d", len(s.Mean), NumFeatures)
	}
	if len(s.Scale) != NumFeatures {
		return fmt.Errorf("scale has %d entries, want %d", len(s.Scale), NumFeatures)
	}
	if len(s.FeatureNames) == 0 {
		return nil
	}
	if len(s.FeatureNames) != NumFeatures {
		return fmt.Errorf("feature_names has %d entries, want %d", len(s.FeatureNames), NumFeatures)
	}
	for i, name := range s.FeatureNames {
		if name != featureNames[i] {
			return fmt.Errorf("feature %d is %q, want %q", i, name, featureNames[i])
		}
	}
	return nil
}

// LoadScaler reads a fitted StandardScaler exported as JSON.
func LoadScaler(path string) (*StandardScaler, error) {
	payload, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	var scaler StandardScaler
	if err := json.Unmarshal(payload, &scaler); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	if err := scaler.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	return &scaler, nil
}

func readArtifact(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	return payload, nil
}
