package engine

import "errors"

// ErrAnswerGeneration reports that retrieval produced usable context but
// the model call to compose the answer failed.
var ErrAnswerGeneration = errors.New("answer generation failed")
