package ml

import (
	"errors"
	"fmt"
)

var (
	ErrArtifactMissing = errors.New("artifact file not found")
	ErrArtifactInvalid = errors.New("artifact file is invalid")

	ErrMissingField  = errors.New("missing form field")
	ErrInvalidNumber = errors.New("value is not a number")
	ErrNonFinite     = errors.New("value must be finite")

	ErrInternal = errors.New("internal pipeline fault")
)

// Stage names a step of the prediction pipeline.
type Stage string

const (
	StageParse    Stage = "parse"
	StageScale    Stage = "scale"
	StageClassify Stage = "classify"
)

// StageError records which pipeline step failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage reports the pipeline step an error came from, if any.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}
