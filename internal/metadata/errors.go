package metadata

import "errors"

var (
	// ErrParse indicates the completion did not contain a decodable JSON object.
	ErrParse = errors.New("metadata: unparseable response")
	// ErrSchema indicates the decoded metadata violates the length or count bounds.
	ErrSchema = errors.New("metadata: schema violation")
	// ErrExhausted indicates every attempt failed; the last cause is wrapped alongside it.
	ErrExhausted = errors.New("metadata: generation attempts exhausted")
	// ErrGeneration indicates a non-retryable provider failure.
	ErrGeneration = errors.New("metadata: generation failed")
)
