package ml

import (
	"errors"
	"fmt"
	"os"
)

const (
	ModelTypeKNN          = "knn"
	ModelTypeDecisionTree = "decision_tree"
)

// Artifacts bundles the fitted classifier and scaler. It is read-only after
// LoadArtifacts returns and is shared by every request.
type Artifacts struct {
	classifier Classifier
	scaler     Scaler
	modelType  string
	modelPath  string
	scalerPath string
}

// NewArtifacts wraps already constructed components.
func NewArtifacts(classifier Classifier, scaler Scaler) *Artifacts {
	return &Artifacts{classifier: classifier, scaler: scaler}
}

func (a *Artifacts) Classifier() Classifier { return a.classifier }
func (a *Artifacts) Scaler() Scaler         { return a.scaler }
func (a *Artifacts) ModelType() string      { return a.modelType }

// Paths returns the files the artifacts were read from.
func (a *Artifacts) Paths() []string {
	paths := make([]string, 0, 2)
	for _, p := range []string{a.modelPath, a.scalerPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func LoadModel(modelType, path string) (Classifier, error) {
	switch modelType {
	case ModelTypeKNN, "":
		model := &KNN{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model type %q", ErrArtifactInvalid, modelType)
	}
}

// LoadArtifacts checks both files exist before parsing either, so a missing
// file is always reported as ErrArtifactMissing.
func LoadArtifacts(modelType, modelPath, scalerPath string) (*Artifacts, error) {
	for _, path := range []string{modelPath, scalerPath} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
		}
	}

	classifier, err := LoadModel(modelType, modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if modelType == "" {
		modelType = ModelTypeKNN
	}
	return &Artifacts{
		classifier: classifier,
		scaler:     scaler,
		modelType:  modelType,
		modelPath:  modelPath,
		scalerPath: scalerPath,
	}, nil
}
