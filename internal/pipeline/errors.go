package pipeline

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageKey       Stage = "key"
	StageCacheGet  Stage = "cache_get"
	StageCachePut  Stage = "cache_put"
	StageDecompose Stage = "decompose"
)

// PipelineError is a non-recoverable resolve fault. Sub-query fetch failures
// never surface as a PipelineError.
type PipelineError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("pipeline %s [%s]: %v", e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

var ErrInvalidRequest = errors.New("invalid request")

func stageErr(stage Stage, key string, err error) error {
	return &PipelineError{Stage: stage, Key: key, Err: err}
}
