package common

import (
	"errors"
	"fmt"
)

// Stage names the pipeline phase an error or log entry originated from.
type Stage string

const (
	StagePending       Stage = "pending"
	StageValidating    Stage = "validating"
	StageChunking      Stage = "chunking"
	StageExtracting    Stage = "extracting"
	StageScoring       Stage = "scoring"
	StageDeduplicating Stage = "deduplicating"
	StagePersisting    Stage = "persisting"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

// PipelineError tags an error with the stage it originated from. Validation
// and persistence errors are fatal for the document; extraction errors are
// degraded, not fatal, and surface as warnings instead.
type PipelineError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with the originating stage and a human-readable
// message.
func NewPipelineError(stage Stage, message string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Message: message, Err: err}
}

// ErrValidation marks fatal document validation failures (empty content,
// oversized document, binary content).
var ErrValidation = errors.New("validation failed")

// ErrExtraction marks oracle failures. A chunk hitting this contributes zero
// entities and relationships; processing continues.
var ErrExtraction = errors.New("extraction failed")

// ErrPersistence marks store write failures. Fatal for the document; no
// assumption is made about partial writes already committed by the store.
var ErrPersistence = errors.New("persistence failed")
