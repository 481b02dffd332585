package ml

import (
	"errors"
	"fmt"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Prediction is the outcome of one pass through the pipeline.
type Prediction struct {
	Features   FeatureVector
	Label      int
	Potable    bool
	Confidence float64
}

// Predictor runs parse, scale and classify against fixed artifacts.
type Predictor struct {
	artifacts *Artifacts
	cache     *lru.Cache[FeatureVector, Prediction]
}

// NewPredictor builds a predictor. A cacheSize of zero or less disables the
// result cache.
func NewPredictor(artifacts *Artifacts, cacheSize int) (*Predictor, error) {
	if artifacts == nil || artifacts.classifier == nil || artifacts.scaler == nil {
		return nil, errors.New("artifacts are required")
	}
	p := &Predictor{artifacts: artifacts}
	if cacheSize > 0 {
		cache, err := lru.New[FeatureVector, Prediction](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Predict parses form values and classifies them. Every failure comes back
// as a *StageError.
func (p *Predictor) Predict(values url.Values) (Prediction, error) {
	vector, err := ParseFeatures(values)
	if err != nil {
		return Prediction{}, &StageError{Stage: StageParse, Err: err}
	}
	return p.PredictVector(vector)
}

func (p *Predictor) PredictVector(vector FeatureVector) (Prediction, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(vector); ok {
			return cached, nil
		}
	}

	var scaled ScaledVector
	err := runStage(StageScale, func() error {
		var err error
		scaled, err = p.artifacts.scaler.Transform(vector)
		return err
	})
	if err != nil {
		return Prediction{}, err
	}

	var label int
	var confidence float64
	err = runStage(StageClassify, func() error {
		var err error
		label, confidence, err = p.artifacts.classifier.Predict(scaled)
		if err == nil && !validLabel(label) {
			err = fmt.Errorf("classifier returned label %d", label)
		}
		return err
	})
	if err != nil {
		return Prediction{}, err
	}

	prediction := Prediction{
		Features:   vector,
		Label:      label,
		Potable:    label == LabelPotable,
		Confidence: confidence,
	}
	if p.cache != nil {
		p.cache.Add(vector, prediction)
	}
	return prediction, nil
}

func runStage(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("%w: %v", ErrInternal, r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
