package ai

import "errors"

var (
	// ErrModelNotLoaded is returned when a model is used before Load succeeded.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrDimensionMismatch is returned when a model produces vectors of an
	// unexpected length.
	ErrDimensionMismatch = errors.New("model dimension mismatch")

	// ErrEmptyResult is returned when a model returns fewer vectors than texts.
	ErrEmptyResult = errors.New("model returned no embedding")
)
